package it

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gossipd/internal/clock"
	"gossipd/internal/gossip"
	"gossipd/internal/member"
)

const (
	n1 = "10.0.0.1:7946"
	n2 = "10.0.0.2:7946"
	n3 = "10.0.0.3:7946"

	tFail   = 5
	tRemove = 20
)

func newTestCluster(t *testing.T, opts Options) *Cluster {
	t.Helper()
	if opts.Introducer.IsZero() {
		opts.Introducer = member.MustParseKey(n1)
	}
	if opts.TFail == 0 {
		opts.TFail = tFail
	}
	if opts.TRemove == 0 {
		opts.TRemove = tRemove
	}
	opts.Logger = zaptest.NewLogger(t)
	return NewCluster(opts)
}

// joinSequentially starts each node and waits for its join handshake to
// complete before starting the next one.
func joinSequentially(t *testing.T, c *Cluster, addrs ...string) {
	t.Helper()
	for _, addr := range addrs {
		n, err := c.StartNode(addr)
		require.NoError(t, err)
		_, ok := c.RunUntil(10, func() bool {
			return n.Engine.View().State == gossip.Joined
		})
		require.True(t, ok, "node %s should join", addr)
	}
}

func requireHeartbeatsMatchOwners(t *testing.T, c *Cluster) {
	t.Helper()
	for _, n := range c.Live() {
		for _, owner := range c.Live() {
			e, ok := n.Lookup(owner.Key)
			require.True(t, ok, "%s should know %s", n.Key, owner.Key)
			assert.Equal(t, owner.Heartbeat(), e.Heartbeat,
				"%s's heartbeat for %s should equal the owner's self-report", n.Key, owner.Key)
		}
	}
}

func TestCluster_ThreeNodesConverge(t *testing.T) {
	c := newTestCluster(t, Options{})
	joinSequentially(t, c, n1, n2, n3)

	_, ok := c.RunUntil(2*tFail, c.Converged)
	require.True(t, ok, "cluster should converge within two gossip rounds")

	// One more round so every node has pushed its latest heartbeat to
	// everybody, then deliver without ticking.
	c.Run(tFail)
	c.Drain()

	requireHeartbeatsMatchOwners(t, c)
	for _, n := range c.Live() {
		assert.Len(t, n.Table(), 3)
		assert.Greater(t, n.Heartbeat(), int64(0))
	}
}

func TestCluster_LargerGroupConverges(t *testing.T) {
	c := newTestCluster(t, Options{})
	addrs := make([]string, 0, 8)
	for i := 1; i <= 8; i++ {
		addrs = append(addrs, fmt.Sprintf("10.0.0.%d:7946", i))
	}
	joinSequentially(t, c, addrs...)

	_, ok := c.RunUntil(4*tFail, c.Converged)
	require.True(t, ok, "cluster should converge")

	c.Run(tFail)
	c.Drain()
	requireHeartbeatsMatchOwners(t, c)
}

// watchTimestamps ticks the cluster until every survivor has evicted peer,
// recording the last local timestamp each survivor held for it.
func watchTimestamps(t *testing.T, c *Cluster, peer member.Key, max int) map[member.Key]clock.Tick {
	t.Helper()
	last := make(map[member.Key]clock.Tick)
	record := func() bool {
		gone := true
		for _, n := range c.Live() {
			if e, ok := n.Lookup(peer); ok {
				last[n.Key] = e.Timestamp
				gone = false
			}
		}
		return gone
	}
	_, ok := c.RunUntil(max, record)
	require.True(t, ok, "every survivor should evict %s", peer)
	return last
}

func TestCluster_FailedNodeIsEvicted(t *testing.T) {
	c := newTestCluster(t, Options{})
	joinSequentially(t, c, n1, n2, n3)
	_, ok := c.RunUntil(2*tFail, c.Converged)
	require.True(t, ok)
	c.Run(4 * tFail)

	victim := member.MustParseKey(n2)
	lastBeat := c.GetNode(n2).Table()[0].Timestamp
	killedAt := c.Now()
	require.NoError(t, c.KillNode(n2))

	last := watchTimestamps(t, c, victim, tRemove+tFail+5)
	require.Len(t, last, 2)

	removals := make(map[member.Key]clock.Tick)
	for _, ev := range c.Events() {
		if ev.Peer != victim || ev.At <= killedAt {
			continue
		}
		require.False(t, ev.Added, "%s re-learned %s at tick %d", ev.Self, victim, ev.At)
		_, dup := removals[ev.Self]
		require.False(t, dup, "%s removed %s twice", ev.Self, victim)
		removals[ev.Self] = ev.At
	}
	require.Len(t, removals, 2)

	for self, at := range removals {
		silent := at - last[self]
		assert.Equal(t, clock.Tick(tRemove+1), silent, "%s should evict on the first tick past the threshold", self)
		// Within TRemove..TRemove+TFail ticks of the victim's last heartbeat.
		assert.GreaterOrEqual(t, int64(at-lastBeat), int64(tRemove))
		assert.LessOrEqual(t, int64(at-lastBeat), int64(tRemove+tFail))
	}

	// Survivors keep agreeing and never bring the victim back.
	c.Run(3 * tRemove)
	assert.True(t, c.Converged())
	for _, ev := range c.Events() {
		if ev.Peer == victim && ev.Added {
			assert.LessOrEqual(t, int64(ev.At), int64(killedAt), "%s re-learned %s", ev.Self, victim)
		}
	}
}

func TestCluster_RestartedNodeRejoinsWithoutHistory(t *testing.T) {
	c := newTestCluster(t, Options{})
	joinSequentially(t, c, n1, n2, n3)
	_, ok := c.RunUntil(2*tFail, c.Converged)
	require.True(t, ok)
	c.Run(8 * tFail)

	victim := member.MustParseKey(n2)
	before := c.GetNode(n2).Heartbeat()
	require.GreaterOrEqual(t, before, int64(8))

	require.NoError(t, c.KillNode(n2))
	watchTimestamps(t, c, victim, tRemove+tFail+5)
	restartedAt := c.Now()

	restarted, err := c.RestartNode(n2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), restarted.Heartbeat())

	_, ok = c.RunUntil(4*tFail, c.Converged)
	require.True(t, ok, "restarted node should rejoin")
	c.Run(tFail)
	c.Drain()

	requireHeartbeatsMatchOwners(t, c)
	assert.Less(t, restarted.Heartbeat(), before, "no heartbeat history should survive a restart")

	readded := 0
	for _, ev := range c.Events() {
		if ev.Peer == victim && ev.Added && ev.At >= restartedAt {
			readded++
		}
	}
	assert.Equal(t, 2, readded, "each survivor should add the restarted node once")
}

func TestCluster_StartNodeTwice(t *testing.T) {
	c := newTestCluster(t, Options{})
	_, err := c.StartNode(n1)
	require.NoError(t, err)

	_, err = c.StartNode(n1)
	assert.Error(t, err)

	assert.Error(t, c.KillNode(n2))
}

func TestCluster_JoinFailsWithoutIntroducer(t *testing.T) {
	c := newTestCluster(t, Options{JoinTimeout: 4, MaxJoinAttempts: 3})

	n, err := c.StartNode(n2)
	require.NoError(t, err)

	_, ok := c.RunUntil(100, func() bool { return n.Engine.Err() != nil })
	require.True(t, ok, "join should fail")

	assert.ErrorIs(t, n.Engine.Err(), gossip.ErrJoinFailed)
	assert.Equal(t, clock.Tick(31), c.Now())
	assert.Equal(t, gossip.Joining, n.Engine.View().State)
	assert.Len(t, n.Table(), 1)
	assert.Equal(t, uint64(3), c.Network().Stats(n.Key).Sent)
}

func TestCluster_TableInvariantsUnderLoss(t *testing.T) {
	c := newTestCluster(t, Options{
		DropRate:        0.3,
		Seed:            42,
		JoinTimeout:     3,
		MaxJoinAttempts: 50,
	})

	addrs := []string{n1, n2, n3, "10.0.0.4:7946", "10.0.0.5:7946", "10.0.0.6:7946"}
	known := make(map[member.Key]bool)
	for _, addr := range addrs {
		_, err := c.StartNode(addr)
		require.NoError(t, err)
		known[member.MustParseKey(addr)] = true
		c.Tick()
	}

	lastHeartbeat := make(map[member.Key]int64)
	for tick := 0; tick < 300; tick++ {
		c.Tick()

		for _, n := range c.Live() {
			table := n.Table()
			require.NotEmpty(t, table)
			require.Equal(t, n.Key, table[0].Key, "self entry must stay first")

			seen := make(map[member.Key]bool, len(table))
			for _, e := range table {
				require.False(t, seen[e.Key], "duplicate entry for %s at %s", e.Key, n.Key)
				require.True(t, known[e.Key], "unknown entry %s at %s", e.Key, n.Key)
				seen[e.Key] = true
			}

			hb := n.Heartbeat()
			require.GreaterOrEqual(t, hb, lastHeartbeat[n.Key], "self heartbeat went backwards at %s", n.Key)
			lastHeartbeat[n.Key] = hb
		}
	}

	for _, n := range c.Live() {
		assert.NoError(t, n.Engine.Err())
	}
	assert.Greater(t, c.Network().Stats(member.MustParseKey(n1)).Dropped, uint64(0))
}
