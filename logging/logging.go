// Copyright © by the dnsdiff-fuzzer authors.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the structured logger used throughout the
// fuzzer: a text handler over a pubsub.Logger (so live log lines can
// be tailed by a subscriber), optionally fanning out to a syslog
// handler.
package logging

import (
	"log/slog"
	"log/syslog"

	slogsyslog "github.com/samber/slog-syslog/v2"

	"github.com/dnsdiff/fuzzer/pubsub"
)

// Config selects which handlers New wires into the returned logger.
type Config struct {
	Level      slog.Level
	SyslogNet  string // "udp" or "tcp"; empty disables the syslog handler
	SyslogAddr string
	SyslogTag  string
}

// New builds the fuzzer's root logger and returns both the slog
// frontend and the pubsub.Logger backing its primary handler, so
// callers can Subscribe to the live log stream (e.g. a "show-stats"
// CLI tab) without re-parsing log lines.
func New(cfg Config) (*slog.Logger, *pubsub.Logger, error) {
	ps := pubsub.NewLogger()

	handler := slog.NewTextHandler(ps, &slog.HandlerOptions{Level: cfg.Level})
	var handlers []slog.Handler
	handlers = append(handlers, handler)

	if cfg.SyslogNet != "" {
		w, err := syslog.Dial(cfg.SyslogNet, cfg.SyslogAddr, syslog.LOG_INFO, cfg.SyslogTag)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, slogsyslog.Option{Level: cfg.Level, Writer: w}.NewSyslogHandler())
	}

	log := slog.New(multiHandler(handlers))
	return log, ps, nil
}

// multiHandler fans every record out to each of its handlers,
// continuing past a failing handler and returning the first error, so
// a broken syslog connection never swallows the local log stream.
type multiHandlerImpl struct {
	handlers []slog.Handler
}

func multiHandler(handlers []slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return &multiHandlerImpl{handlers: handlers}
}
