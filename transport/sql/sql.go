// Package sql runs the transport bridge over Postgres with watermill-sql. Messages
// are rows of a per topic table, consumed with stored offsets.
package sql

import (
	"context"
	"time"

	"github.com/GabrielCarpr/mediator/bus"
	"github.com/GabrielCarpr/mediator/log"
	"github.com/GabrielCarpr/mediator/transport"
	wmSql "github.com/ThreeDotsLabs/watermill-sql/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/hashicorp/go-multierror"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PoisonTopic receives the messages that failed every retry
const PoisonTopic = "failures"

// Open connects to the database of c
func Open(c Config) (*sqlx.DB, error) {
	return sqlx.Connect("postgres", c.DBDsn())
}

// Queue is a Postgres publisher and subscriber pair for one topic
type Queue struct {
	db         *sqlx.DB
	topic      string
	logger     *log.Logger
	publisher  *wmSql.Publisher
	subscriber *wmSql.Subscriber
}

func NewQueue(db *sqlx.DB, topic string, logger *log.Logger) (*Queue, error) {
	if topic == "" {
		topic = transport.DefaultTopic
	}
	wmLogger := transport.Logger(logger)

	publisher, err := wmSql.NewPublisher(
		db.DB,
		wmSql.PublisherConfig{
			SchemaAdapter:        PostgreSQLSchema{},
			AutoInitializeSchema: true,
		},
		wmLogger,
	)
	if err != nil {
		return nil, err
	}
	subscriber, err := wmSql.NewSubscriber(
		db.DB,
		wmSql.SubscriberConfig{
			SchemaAdapter:    PostgreSQLSchema{},
			OffsetsAdapter:   wmSql.DefaultPostgreSQLOffsetsAdapter{},
			InitializeSchema: true,
			PollInterval:     100 * time.Millisecond,
		},
		wmLogger,
	)
	if err != nil {
		publisher.Close()
		return nil, err
	}
	return &Queue{db: db, topic: topic, logger: logger, publisher: publisher, subscriber: subscriber}, nil
}

func (q *Queue) Publisher() message.Publisher {
	return q.publisher
}

func (q *Queue) Subscriber() message.Subscriber {
	return q.subscriber
}

// Forwarder publishes to the queue's topic
func (q *Queue) Forwarder(opts ...transport.Option) *transport.Forwarder {
	opts = append([]transport.Option{transport.WithTopic(q.topic), transport.WithLogger(q.logger)}, opts...)
	return transport.NewForwarder(q.publisher, opts...)
}

// Consumer dispatches the queue's messages on b. Failed messages are retried three
// times, then moved to PoisonTopic.
func (q *Queue) Consumer(b *bus.Bus, opts ...transport.Option) (*transport.Consumer, error) {
	opts = append([]transport.Option{
		transport.WithTopic(q.topic),
		transport.WithLogger(q.logger),
		transport.WithRetry(3, 2*time.Second),
		transport.WithPoisonQueue(q.publisher, PoisonTopic),
	}, opts...)
	return transport.NewConsumer(b, q.subscriber, opts...)
}

// Pending counts the messages stored for topic
func (q *Queue) Pending(ctx context.Context, topic string) (int, error) {
	var n int
	table := PostgreSQLSchema{}.MessagesTable(topic)
	if err := q.db.GetContext(ctx, &n, `SELECT count(*) FROM `+table); err != nil {
		return 0, err
	}
	return n, nil
}

// Reset drops the message and offset tables of topics. Queues already publishing to
// them must be recreated.
func Reset(ctx context.Context, db *sqlx.DB, topics ...string) error {
	offsets := wmSql.DefaultPostgreSQLOffsetsAdapter{}
	for _, topic := range topics {
		tables := []string{PostgreSQLSchema{}.MessagesTable(topic), offsets.MessagesOffsetsTable(topic)}
		for _, table := range tables {
			if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
				return err
			}
		}
	}
	return nil
}

func (q *Queue) Close() error {
	var errs *multierror.Error
	if err := q.subscriber.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := q.publisher.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}
