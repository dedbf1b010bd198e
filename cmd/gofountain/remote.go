/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"gofountain/internal/backend"
	"gofountain/internal/config"
	"gofountain/internal/telemetry"
)

// EnvAuthSecret holds the HMAC secret "serve" signs tokens with.
const EnvAuthSecret = "GFT_AUTH_SECRET"

var errServerDisabled = errors.New("server features are disabled; set general.enable_server or " + config.EnvEnableServer + "=1")

// client builds a backend client from the config. With auth, a stored token is required.
func (a *app) client(auth bool) (*backend.Client, error) {
	if !a.cfg.General.EnableServer {
		return nil, errServerDisabled
	}
	if auth && a.token == "" {
		return nil, errors.New("not logged in; run \"gofountain login\" first")
	}
	opts := []backend.ClientOption{backend.WithTimeout(a.cfg.Backend.EffectiveTimeout())}
	if a.cfg.Backend.TLSInsecure {
		opts = append(opts, backend.WithInsecureTLS())
	}
	return backend.NewClient(a.cfg.Backend.BaseURL, a.token, opts...), nil
}

func (a *app) serveCmd() *cobra.Command {
	var addr, dsn string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (parse, render, publish, search)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Backend.ListenAddr
			}
			if dsn == "" {
				dsn = a.cfg.Backend.DatabaseURL
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			telemetry.Event(telemetry.EventServe, map[string]any{"postgres": dsn != ""})
			return backend.Start(ctx, backend.ServerConfig{Addr: addr, DatabaseURL: dsn, Secret: os.Getenv(EnvAuthSecret)})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default backend.listen_addr)")
	cmd.Flags().StringVar(&dsn, "db", "", "Postgres DSN (default backend.database_url; empty keeps scripts in memory)")
	return cmd
}

func (a *app) publishCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "publish <file>",
		Short: "Upload a script to the configured server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(true)
			if err != nil {
				return err
			}
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if _, err := a.readDocument(cmd, args[0]); err != nil {
				return err
			}
			sum, err := c.Publish(cmd.Context(), id, string(b))
			if err != nil {
				return err
			}
			a.log.Info("published", slog.String("id", sum.ID), slog.Int64("version", sum.Version))
			fmt.Fprintf(cmd.OutOrStdout(), "Published %s (version %d)\n", sum.ID, sum.Version)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "id of an already published script to replace")
	return cmd
}

func (a *app) loginCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Request a token from the server and store it in the OS keychain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(false)
			if err != nil {
				return err
			}
			if subject == "" {
				subject = os.Getenv("USER")
			}
			tok, exp, err := c.Token(cmd.Context(), subject, ttl)
			if err != nil {
				return err
			}
			if err := config.Save(a.cfg, tok); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s until %s\n", subject, exp.Local().Format(time.DateTime))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "name to publish under (default $USER)")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime (the server caps it at 24h)")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.ClearToken()
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := yaml.Marshal(a.cfg)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if _, err := w.Write(b); err != nil {
				return err
			}
			var notes []string
			for _, key := range []string{
				"backend.base_url", "backend.timeout_ms", "backend.tls_insecure", "backend.listen_addr", "backend.database_url",
				"general.telemetry_opt_in", "general.enable_server", "render.theme", "library.root",
				"logging.level", "logging.format", "logging.source", "logging.file",
			} {
				if env, ok := config.EnvOverrideFor(key); ok {
					notes = append(notes, fmt.Sprintf("# %s overridden by %s", key, env))
				}
			}
			if len(notes) > 0 {
				fmt.Fprintln(w, strings.Join(notes, "\n"))
			}
			if a.token != "" {
				fmt.Fprintln(w, "# backend token: stored in keychain")
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := config.ConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the current configuration to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Save(a.cfg, "")
		},
	})
	return cmd
}
