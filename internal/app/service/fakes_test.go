package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jose-valero/guardbot-fleet/internal/domain"
)

// fakeClock: reloj manual para que los timers de stay sean deterministas.
// Advance dispara los After cuyo vencimiento ya pasó.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []clockWaiter
}

type clockWaiter struct {
	at time.Time
	ch chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, clockWaiter{at: c.now.Add(d), ch: ch})
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var keep []clockWaiter
	for _, w := range c.waiters {
		if !w.at.After(c.now) {
			w.ch <- c.now
		} else {
			keep = append(keep, w)
		}
	}
	c.waiters = keep
	c.mu.Unlock()
}

// waitWaiters espera a que n goroutines estén bloqueadas en After antes
// de avanzar el reloj.
func (c *fakeClock) waitWaiters(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := len(c.waiters)
		c.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("esperaba %d waiters en el reloj", n)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timeout esperando: %s", what)
}

// fakeDirectory: canales y miembros en memoria, más el conteo de humanos
// por canal que los timers consultan.
type fakeDirectory struct {
	mu       sync.Mutex
	channels map[string]domain.Channel
	members  map[string]domain.Member
	humans   map[string]int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		channels: map[string]domain.Channel{},
		members:  map[string]domain.Member{},
		humans:   map[string]int{},
	}
}

func (d *fakeDirectory) addChannel(id string) domain.Channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch := domain.Channel{ID: id, GuildID: "guild-1", Name: "voz-" + id}
	d.channels[id] = ch
	return ch
}

func (d *fakeDirectory) addMember(id string) domain.Member {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := domain.Member{ID: id, GuildID: "guild-1", DisplayName: "user-" + id}
	d.members[id] = m
	return m
}

func (d *fakeDirectory) removeChannel(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.channels, id)
}

func (d *fakeDirectory) setHumans(channelID string, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.humans[channelID] = n
}

func (d *fakeDirectory) ResolveChannel(ctx context.Context, channelID string) (domain.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, ok := d.channels[channelID]
	if !ok {
		return domain.Channel{}, fmt.Errorf("canal %s no existe", channelID)
	}
	return ch, nil
}

func (d *fakeDirectory) ResolveMember(ctx context.Context, guildID, userID string) (domain.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.members[userID]
	if !ok {
		return domain.Member{}, fmt.Errorf("miembro %s no existe", userID)
	}
	return m, nil
}

func (d *fakeDirectory) HumanCount(channelID string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.humans[channelID], nil
}

// fakeSession: conexión de voz simulada, con fallo inyectable.
type fakeSession struct {
	mu        sync.Mutex
	connected bool
	channelID string
	failNext  int
	connects  int
}

func (s *fakeSession) Connect(ctx context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	if s.failNext > 0 {
		s.failNext--
		return fmt.Errorf("gateway caído")
	}
	s.connected = true
	s.channelID = channelID
	return nil
}

func (s *fakeSession) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.channelID = ""
	return nil
}

func (s *fakeSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *fakeSession) ChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelID
}

func (s *fakeSession) drop() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
}

func (s *fakeSession) setFailNext(n int) {
	s.mu.Lock()
	s.failNext = n
	s.mu.Unlock()
}

// fakeNotifier registra todo lo enviado, separando avisos con botones.
type fakeNotifier struct {
	mu      sync.Mutex
	sends   []string
	prompts []string
}

func (n *fakeNotifier) Send(ctx context.Context, channelID, content string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, channelID+": "+content)
	return nil
}

func (n *fakeNotifier) Prompt(ctx context.Context, channelID, content string, botID int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.prompts = append(n.prompts, channelID+": "+content)
	return nil
}

func (n *fakeNotifier) promptCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.prompts)
}

// Repos en memoria.

type memQueueRepo struct {
	mu      sync.Mutex
	entries []domain.QueueEntry
}

func (r *memQueueRepo) Load(ctx context.Context) ([]domain.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.QueueEntry, len(r.entries))
	copy(out, r.entries)
	return out, nil
}

func (r *memQueueRepo) ReplaceAll(ctx context.Context, entries []domain.QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make([]domain.QueueEntry, len(entries))
	copy(r.entries, entries)
	return nil
}

type memScheduleRepo struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]domain.ScheduleEntry
}

func newMemScheduleRepo() *memScheduleRepo {
	return &memScheduleRepo{entries: map[int64]domain.ScheduleEntry{}}
}

func (r *memScheduleRepo) Insert(ctx context.Context, e domain.ScheduleEntry) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.ID = r.nextID
	r.entries[e.ID] = e
	return e.ID, nil
}

func (r *memScheduleRepo) ListActive(ctx context.Context) ([]domain.ScheduleEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ScheduleEntry
	for _, e := range r.entries {
		if e.Active {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memScheduleRepo) ListByUser(ctx context.Context, userID string) ([]domain.ScheduleEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ScheduleEntry
	for _, e := range r.entries {
		if e.Active && e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memScheduleRepo) SetTrigger(ctx context.Context, id int64, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[id]
	e.TriggerAt = t
	r.entries[id] = e
	return nil
}

func (r *memScheduleRepo) Deactivate(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[id]
	e.Active = false
	r.entries[id] = e
	return nil
}

func (r *memScheduleRepo) get(id int64) domain.ScheduleEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[id]
}

type recordedCall struct {
	UserID    string
	BotID     int
	ChannelID string
	Tier      domain.Tier
	Hours     float64
}

type memStatsRepo struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *memStatsRepo) RecordCall(ctx context.Context, userID string, botID int, channelID string, tier domain.Tier, hours float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{userID, botID, channelID, tier, hours})
	return nil
}

func (r *memStatsRepo) User(ctx context.Context, userID string) (domain.UserStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := domain.UserStats{TierUsage: map[domain.Tier]int{}}
	for _, c := range r.calls {
		if c.UserID == userID {
			st.TotalCalls++
			st.TotalHours += c.Hours
			st.TierUsage[c.Tier]++
		}
	}
	return st, nil
}

func (r *memStatsRepo) Bot(ctx context.Context, botID int) (domain.BotStats, error) {
	return domain.BotStats{}, nil
}

func (r *memStatsRepo) Channel(ctx context.Context, channelID string) (domain.ChannelStats, error) {
	return domain.ChannelStats{}, nil
}

func (r *memStatsRepo) Global(ctx context.Context) (domain.GlobalStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.GlobalStats{TotalCalls: len(r.calls)}, nil
}

func (r *memStatsRepo) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	return nil, nil
}

func (r *memStatsRepo) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type memSnapshotRepo struct {
	mu    sync.Mutex
	snaps []domain.Snapshot
}

func (r *memSnapshotRepo) Save(ctx context.Context, snap domain.Snapshot, retain int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
	if len(r.snaps) > retain {
		r.snaps = r.snaps[len(r.snaps)-retain:]
	}
	return nil
}

func (r *memSnapshotRepo) Latest(ctx context.Context) (domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return domain.Snapshot{}, fmt.Errorf("no hay snapshots")
	}
	return r.snaps[len(r.snaps)-1], nil
}

func (r *memSnapshotRepo) Get(ctx context.Context, id string) (domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.snaps {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.Snapshot{}, fmt.Errorf("snapshot %s no existe", id)
}

func (r *memSnapshotRepo) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps), nil
}

type memMessagesRepo struct {
	mu   sync.Mutex
	msgs map[string]string
}

func newMemMessagesRepo() *memMessagesRepo {
	return &memMessagesRepo{msgs: map[string]string{}}
}

func (r *memMessagesRepo) All(ctx context.Context) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]string{}
	for k, v := range r.msgs {
		out[k] = v
	}
	return out, nil
}

func (r *memMessagesRepo) Set(ctx context.Context, event, template string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs[event] = template
	return nil
}

func (r *memMessagesRepo) Delete(ctx context.Context, event string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.msgs, event)
	return nil
}

// testFleet arma un coordinator con n bots sobre fakes compartidos.
type testFleet struct {
	coord    *Coordinator
	queue    *QueueService
	clock    *fakeClock
	dir      *fakeDirectory
	notif    *fakeNotifier
	stats    *memStatsRepo
	sessions map[int]*fakeSession
}

func newTestFleet(t *testing.T, n int) *testFleet {
	t.Helper()
	clock := newFakeClock()
	dir := newFakeDirectory()
	notif := &fakeNotifier{}
	statsRepo := &memStatsRepo{}
	queue := NewQueueService(&memQueueRepo{}, clock)
	msgs := NewMessageService(newMemMessagesRepo())
	stats := NewStatsService(statsRepo)
	coord := NewCoordinator(queue, NewTierService(TierRoles{}), dir, notif, msgs, clock)

	sessions := map[int]*fakeSession{}
	for i := 1; i <= n; i++ {
		sess := &fakeSession{}
		sessions[i] = sess
		b := NewInstance(i, false, "", InstanceDeps{
			Session:  sess,
			Dir:      dir,
			Notifier: notif,
			Messages: msgs,
			Stats:    stats,
			Clock:    clock,
		})
		coord.RegisterBot(b)
		b.SetOnline(context.Background())
	}
	return &testFleet{
		coord:    coord,
		queue:    queue,
		clock:    clock,
		dir:      dir,
		notif:    notif,
		stats:    statsRepo,
		sessions: sessions,
	}
}
