// Package natsjs implements the store contract on NATS JetStream: presence
// lives in a key-value bucket watched for changes, the message feed in a
// stream replayed through an ordered consumer. JetStream assigns the
// timestamps and sequence numbers every observer orders by.
package natsjs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mcdev12/focushub/go/internal/models"
	"github.com/mcdev12/focushub/go/internal/store"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Config holds NATS connection and naming settings.
type Config struct {
	URL           string
	Stream        string // message stream name
	Subject       string // message subject
	Bucket        string // presence KV bucket
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns default JetStream settings.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Stream:        "FOCUSHUB_MESSAGES",
		Subject:       "focushub.messages",
		Bucket:        "focushub-presence",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Store is a JetStream-backed room store.
type Store struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
	kv     jetstream.KeyValue
	cfg    Config

	// Terminal connection failures fan out to every live watch.
	errMu   sync.Mutex
	errSubs map[chan error]struct{}
}

// New connects to NATS and ensures the stream and bucket exist.
func New(ctx context.Context, cfg Config) (*Store, error) {
	s := &Store{
		cfg:     cfg,
		errSubs: make(map[chan error]struct{}),
	}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			s.fanOutError(&store.SubscriptionError{Source: "nats", Err: nats.ErrConnectionClosed})
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.Subject},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.Stream, err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  cfg.Bucket,
		History: 1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure bucket %s: %w", cfg.Bucket, err)
	}

	s.nc = nc
	s.js = js
	s.stream = stream
	s.kv = kv

	log.Info().
		Str("url", cfg.URL).
		Str("stream", cfg.Stream).
		Str("bucket", cfg.Bucket).
		Msg("JetStream store ready")
	return s, nil
}

// UpsertPresence implements store.PresenceStore. The record's LastUpdated as
// seen by watchers comes from the KV entry's creation time.
func (s *Store) UpsertPresence(ctx context.Context, rec models.PresenceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal presence record: %w", err)
	}
	if _, err := s.kv.Put(ctx, rec.ParticipantID, data); err != nil {
		return fmt.Errorf("put presence record: %w", err)
	}
	return nil
}

// WatchPresence implements store.PresenceStore.
func (s *Store) WatchPresence(ctx context.Context, fn func(records []models.PresenceRecord)) (store.Subscription, error) {
	watcher, err := s.kv.WatchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("watch presence bucket: %w", err)
	}

	sub := newSubscription(s)
	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		defer watcher.Stop()

		records := make(map[string]models.PresenceRecord)
		replayDone := false
		for {
			select {
			case <-sub.done:
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					sub.fail(&store.SubscriptionError{Source: "presence", Err: fmt.Errorf("watch channel closed")})
					return
				}
				if entry == nil {
					// End of initial replay: deliver the first snapshot.
					replayDone = true
					sub.deliver(func() { fn(presenceSnapshot(records)) })
					continue
				}
				switch entry.Operation() {
				case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
					delete(records, entry.Key())
				default:
					var rec models.PresenceRecord
					if err := json.Unmarshal(entry.Value(), &rec); err != nil {
						log.Error().Err(err).Str("key", entry.Key()).Msg("skipping malformed presence entry")
						continue
					}
					rec.LastUpdated = entry.Created()
					records[entry.Key()] = rec
				}
				if replayDone {
					sub.deliver(func() { fn(presenceSnapshot(records)) })
				}
			}
		}
	}()

	return sub, nil
}

// AppendMessage implements store.MessageStore. Seq is the stream sequence of
// the publish; the stored timestamp is read back so the caller sees exactly
// what watchers will.
func (s *Store) AppendMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("marshal message: %w", err)
	}

	ack, err := s.js.Publish(ctx, s.cfg.Subject, data)
	if err != nil {
		return models.Message{}, fmt.Errorf("publish message: %w", err)
	}
	msg.Seq = ack.Sequence

	raw, err := s.stream.GetMsg(ctx, ack.Sequence)
	if err != nil {
		// The append itself succeeded; fall back to local time for the copy.
		log.Warn().Err(err).Uint64("seq", ack.Sequence).Msg("could not read back message timestamp")
		msg.Timestamp = time.Now()
		return msg, nil
	}
	msg.Timestamp = raw.Time
	return msg, nil
}

// WatchMessages implements store.MessageStore. An ordered consumer replays
// the stream from the start and keeps delivering as appends arrive.
func (s *Store) WatchMessages(ctx context.Context, fn func(msgs []models.Message)) (store.Subscription, error) {
	cons, err := s.js.OrderedConsumer(ctx, s.cfg.Stream, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{s.cfg.Subject},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create ordered consumer: %w", err)
	}

	sub := newSubscription(s)

	var mu sync.Mutex
	var msgs []models.Message

	// Deliver the (possibly empty) current sequence up front so observers
	// start from a full snapshot, mirroring the presence watch.
	sub.deliver(func() { fn(nil) })

	cc, err := cons.Consume(func(m jetstream.Msg) {
		meta, err := m.Metadata()
		if err != nil {
			log.Error().Err(err).Msg("skipping message without metadata")
			return
		}
		var msg models.Message
		if err := json.Unmarshal(m.Data(), &msg); err != nil {
			log.Error().Err(err).Msg("skipping malformed message")
			return
		}
		msg.Seq = meta.Sequence.Stream
		msg.Timestamp = meta.Timestamp

		mu.Lock()
		msgs = append(msgs, msg)
		snapshot := make([]models.Message, len(msgs))
		copy(snapshot, msgs)
		mu.Unlock()

		sub.deliver(func() { fn(snapshot) })
	})
	if err != nil {
		// The subscription already registered its error channel and may have
		// delivered the initial snapshot; release it before failing.
		sub.Unsubscribe()
		return nil, fmt.Errorf("start ordered consumer: %w", err)
	}
	sub.onStop = cc.Stop

	return sub, nil
}

// Close drains the connection.
func (s *Store) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

func (s *Store) addErrSub(ch chan error) {
	s.errMu.Lock()
	s.errSubs[ch] = struct{}{}
	s.errMu.Unlock()
}

func (s *Store) removeErrSub(ch chan error) {
	s.errMu.Lock()
	delete(s.errSubs, ch)
	s.errMu.Unlock()
}

func (s *Store) fanOutError(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	for ch := range s.errSubs {
		select {
		case ch <- err:
		default:
		}
	}
}

func presenceSnapshot(records map[string]models.PresenceRecord) []models.PresenceRecord {
	out := make([]models.PresenceRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ParticipantID < out[j].ParticipantID
	})
	return out
}
