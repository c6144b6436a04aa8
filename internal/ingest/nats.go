// Package ingest adapts the store's log-message ingestion pipeline
// (spec §4.8) to a NATS transport: it subscribes to one or more
// subjects, decodes each message with a caller-supplied Decoder (the
// codec itself is the external ColumnCodec collaborator the
// specification places out of scope), and feeds the result to a
// store.Store.
package ingest

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/tracehive/datastore/internal/storelog"
	"github.com/tracehive/datastore/internal/store"
)

// Decoder turns one raw NATS payload into a LogMsg. Concrete component
// decoding lives entirely outside this package.
type Decoder func(data []byte) (store.LogMsg, error)

// Subscription is one subject to listen on.
type Subscription struct {
	Subject string
}

// Receive subscribes to every subject in subs on nc and feeds decoded
// messages to st until ctx is cancelled. With workers > 1, decoding
// fans out across a worker pool reading from a shared channel so one
// slow decode never blocks the NATS dispatch goroutine. limiter, if
// non-nil, throttles the rate at which the pool as a whole pulls
// messages off that channel — a token-bucket cap on ingestion
// throughput independent of how many workers are configured.
func Receive(ctx context.Context, nc *nats.Conn, subs []Subscription, st *store.Store, decode Decoder, workers int, limiter *rate.Limiter) error {
	if workers < 1 {
		workers = 1
	}

	msgs := make(chan []byte, workers*2)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for data := range msgs {
				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						continue
					}
				}
				decodeAndIngest(st, decode, data)
			}
		}()
	}

	var subscriptions []*nats.Subscription
	for _, sub := range subs {
		s := sub
		nsub, err := nc.Subscribe(s.Subject, func(m *nats.Msg) {
			select {
			case msgs <- m.Data:
			case <-ctx.Done():
			}
		})
		if err != nil {
			close(msgs)
			wg.Wait()
			return err
		}
		subscriptions = append(subscriptions, nsub)
		storelog.Infof("NATS subscription to %q established", s.Subject)
	}

	<-ctx.Done()
	for _, s := range subscriptions {
		_ = s.Unsubscribe()
	}
	close(msgs)
	wg.Wait()
	return nil
}

func decodeAndIngest(st *store.Store, decode Decoder, data []byte) {
	msg, err := decode(data)
	if err != nil {
		storelog.Warnf("discarding unreadable message: %s", err.Error())
		return
	}
	st.Ingest(msg)
}
