package discovery

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"gossipd/internal/member"
)

// DefaultTTL is the lease TTL, in seconds, of an introducer claim.
const DefaultTTL = 10

// ErrNoIntroducer is returned when the claim was lost but the winner's
// entry vanished before it could be read.
var ErrNoIntroducer = errors.New("no introducer registered")

// Claim is the outcome of Resolve.
type Claim struct {
	Introducer member.Key
	// Owner is true when this node won the claim and is the introducer.
	Owner bool
	Lease clientv3.LeaseID
}

// NewClient connects to etcd.
func NewClient(endpoints []string, dialTimeout time.Duration, logger *zap.Logger) (*clientv3.Client, error) {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}
	return cli, nil
}

// IntroducerKey returns the etcd key holding the introducer address.
func IntroducerKey(prefix string) string {
	if prefix == "" {
		prefix = "/"
	}
	return path.Join(prefix, "introducer")
}

// Resolve claims the introducer role for self or, if another node already
// holds it, returns that node's address. A won claim's lease is kept alive
// until cli is closed.
func Resolve(ctx context.Context, cli *clientv3.Client, prefix string, self member.Key, ttl int64, logger *zap.Logger) (Claim, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key := IntroducerKey(prefix)

	lease, err := cli.Grant(ctx, ttl)
	if err != nil {
		return Claim{}, fmt.Errorf("failed to grant lease: %w", err)
	}

	resp, err := cli.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, self.String(), clientv3.WithLease(lease.ID))).
		Else(clientv3.OpGet(key)).
		Commit()
	if err != nil {
		return Claim{}, fmt.Errorf("failed to claim %s: %w", key, err)
	}

	if resp.Succeeded {
		ch, err := cli.KeepAlive(cli.Ctx(), lease.ID)
		if err != nil {
			return Claim{}, fmt.Errorf("failed to keep lease alive: %w", err)
		}
		go func() {
			for range ch {
			}
		}()
		logger.Info("claimed introducer role", zap.String("key", key))
		return Claim{Introducer: self, Owner: true, Lease: lease.ID}, nil
	}

	if _, err := cli.Revoke(ctx, lease.ID); err != nil {
		logger.Debug("failed to revoke unused lease", zap.Error(err))
	}

	kvs := resp.Responses[0].GetResponseRange().GetKvs()
	if len(kvs) == 0 {
		return Claim{}, ErrNoIntroducer
	}
	intro, err := member.ParseKey(string(kvs[0].Value))
	if err != nil {
		return Claim{}, fmt.Errorf("stored introducer: %w", err)
	}
	logger.Info("resolved introducer", zap.Stringer("introducer", intro))
	return Claim{Introducer: intro}, nil
}
