package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/backend"
	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/config"
	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/conversation"
	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/events"
	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/lookup"
	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/persistence/kvstore"
	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/recent"
)

// app owns the long-lived resources a command needs.
type app struct {
	settings config.Settings
	store    kvstore.Store
	pubsub   *events.PubSub
	client   *backend.Client
	recent   *recent.Log
	session  *conversation.Session
	lookup   *lookup.Lookup
}

func newApp(ctx context.Context, s config.Settings) (*app, error) {
	a := &app{settings: s}

	client, err := backend.NewClient(s.BaseURL, backend.WithLogger(log.Logger))
	if err != nil {
		return nil, err
	}
	a.client = client

	store, err := kvstore.Open(ctx, s.Store)
	if err != nil {
		return nil, errors.Wrap(err, "open recent search store")
	}
	a.store = store

	ps, err := events.NewPubSub(ctx, s.Events, log.Logger)
	if err != nil {
		_ = a.Close()
		return nil, errors.Wrap(err, "create event pubsub")
	}
	a.pubsub = ps

	logger := log.Logger
	a.recent, err = recent.Load(ctx, store, recent.Options{Logger: &logger})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.session, err = conversation.NewSession(client, s.SessionKey,
		conversation.WithTimeout(s.RequestTimeout),
		conversation.WithLogger(logger),
		conversation.WithSink(ps.Sink()),
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	opts := []lookup.Option{
		lookup.WithTimeout(s.RequestTimeout),
		lookup.WithLogger(logger),
		lookup.WithSink(ps.Sink()),
	}
	if len(s.Examples) > 0 {
		opts = append(opts, lookup.WithExamples(s.Examples...))
	}
	a.lookup, err = lookup.New(client, a.recent, opts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() error {
	var firstErr error
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			firstErr = err
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
