package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"call-router/internal/audit"
	"call-router/internal/calls"
	"call-router/internal/store"
	"call-router/internal/telnyx"
	"call-router/pkg/logger"
)

// Spoken prompts. Every failure path that affects a live call speaks before
// the call is abandoned; a caller is never left in silence.
const (
	menuPrompt = "Thank you for calling. " +
		"Press 1 to speak with a representative. " +
		"Press 2 to leave details about your project."
	transferMessage         = "Please hold while we connect you to a representative."
	detailsPrompt           = "Please describe your project after the tone, then press pound when finished."
	invalidSelectionMessage = "Sorry, that is not a valid selection."
	noAnswerMessage         = "We are sorry, no representative is available right now. " +
		"Please leave a message after the tone and we will call you back shortly."
	bridgeApologyMessage   = "We are sorry, we were unable to connect your call. Please try again later."
	representativeGreeting = "You have an incoming customer call. Connecting you now."

	transcriptPlaceholder = "Transcript pending."
)

// Notifier evaluates a completed record for external delivery. The
// coordinator only triggers evaluation; eligibility lives with the notifier.
type Notifier interface {
	Evaluate(ctx context.Context, callID string)
}

// RecordingMirror copies a carrier-hosted, time-limited recording to
// permanent storage and returns the stable URL.
type RecordingMirror interface {
	Mirror(ctx context.Context, callID, sourceURL string) (string, error)
}

// Config carries the tunable timings of the bridge flow. Tests shrink them
// to keep runs fast.
type Config struct {
	HumanNumber string

	// NoAnswerTimeout bounds how long a dialed representative may ring.
	NoAnswerTimeout time.Duration
	// GreetingDelay lets the representative greeting finish before bridging.
	GreetingDelay time.Duration
	// MenuDelay is the pause between answering and the IVR menu.
	MenuDelay time.Duration
	// MenuRetryDelay is the pause before replaying the menu on bad input.
	MenuRetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.NoAnswerTimeout <= 0 {
		out.NoAnswerTimeout = 35 * time.Second
	}
	if out.GreetingDelay <= 0 {
		out.GreetingDelay = 3 * time.Second
	}
	if out.MenuDelay <= 0 {
		out.MenuDelay = 1 * time.Second
	}
	if out.MenuRetryDelay <= 0 {
		out.MenuRetryDelay = 2 * time.Second
	}
	return out
}

// Deps are the coordinator's collaborators. Notifier, Mirror and Trail are
// optional.
type Deps struct {
	Store    store.Store
	Carrier  telnyx.CallController
	Trail    *audit.Service
	Notifier Notifier
	Mirror   RecordingMirror
	Logger   *slog.Logger
}

type pendingBridge struct {
	humanID  string
	dialedAt time.Time
}

type activeCall struct {
	startedAt    time.Time
	participants int
}

// Coordinator owns every transient association between a customer leg and
// the representative leg dialed on its behalf. All of that state is
// process-local and mutated only through coordinator methods.
type Coordinator struct {
	cfg      Config
	store    store.Store
	carrier  telnyx.CallController
	trail    *audit.Service
	notifier Notifier
	mirror   RecordingMirror
	log      *slog.Logger
	clock    func() time.Time

	mu                sync.Mutex
	pendingByCustomer map[string]pendingBridge
	pendingByHuman    map[string]string
	active            map[string]activeCall
	timers            map[string]*time.Timer
}

func New(cfg Config, d Deps) *Coordinator {
	l := d.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Coordinator{
		cfg:               cfg.withDefaults(),
		store:             d.Store,
		carrier:           d.Carrier,
		trail:             d.Trail,
		notifier:          d.Notifier,
		mirror:            d.Mirror,
		log:               l,
		clock:             time.Now,
		pendingByCustomer: make(map[string]pendingBridge),
		pendingByHuman:    make(map[string]string),
		active:            make(map[string]activeCall),
		timers:            make(map[string]*time.Timer),
	}
}

// Close stops every armed no-answer timer. Pending associations are dropped;
// they do not survive a restart.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

// OnCallInitiated reacts to a new leg. Inbound legs are answered, recorded
// and offered the IVR menu; outbound legs only get their record seeded.
func (c *Coordinator) OnCallInitiated(ctx context.Context, ev telnyx.Event) {
	id := ev.CallControlID
	log := logger.ForCall(ctx, id)
	now := c.clock().UTC()

	if !ev.Inbound() {
		upd := calls.CallRecord{
			CallID:     id,
			Direction:  calls.DirectionOutbound,
			FromNumber: ev.From,
			ToNumber:   ev.To,
			Status:     calls.CallStatusInitiated,
			StartTime:  &now,
		}
		// Legs placed by the operator API already carry a call type; only
		// unseen legs default to the representative type.
		if _, err := c.store.Get(ctx, id); errors.Is(err, store.ErrNotFound) {
			upd.CallType = calls.CallTypeHumanRepresentative
		}
		if _, err := c.store.Upsert(ctx, upd); err != nil {
			log.Error("store outbound leg", "err", err)
		}
		return
	}

	rec := calls.CallRecord{
		CallID:     id,
		Direction:  calls.DirectionInbound,
		FromNumber: ev.From,
		ToNumber:   ev.To,
		Status:     calls.CallStatusInitiated,
		StartTime:  &now,
		CallType:   calls.CallTypeCustomerInquiry,
	}
	if _, err := c.store.Upsert(ctx, rec); err != nil {
		log.Error("store inbound leg", "err", err)
	}

	if err := c.carrier.Answer(ctx, id); err != nil {
		log.Error("answer", "err", err)
		return
	}
	if err := c.carrier.StartRecording(ctx, id); err != nil {
		log.Warn("start recording", "err", err)
	}

	c.sleep(ctx, c.cfg.MenuDelay)
	c.playMenu(ctx, id)
}

// OnCallAnswered marks the leg answered and, for a pending representative
// leg, runs the bridge sequence.
func (c *Coordinator) OnCallAnswered(ctx context.Context, ev telnyx.Event) {
	id := ev.CallControlID
	log := logger.ForCall(ctx, id)
	now := c.clock().UTC()

	c.mu.Lock()
	c.active[id] = activeCall{startedAt: now, participants: 1}
	customerID, isPendingHuman := c.pendingByHuman[id]
	c.mu.Unlock()

	if _, err := c.store.Upsert(ctx, calls.CallRecord{CallID: id, Status: calls.CallStatusAnswered}); err != nil {
		log.Error("store answered", "err", err)
	}

	if isPendingHuman {
		c.bridge(ctx, customerID, id)
	}
}

func (c *Coordinator) bridge(ctx context.Context, customerID, humanID string) {
	log := logger.ForCall(ctx, customerID).With("human_call_id", humanID)
	c.trail.Log(ctx, audit.EventTypeBridgeRequested, customerID, "representative answered, bridging")

	if err := c.carrier.Speak(ctx, humanID, representativeGreeting); err != nil {
		log.Warn("representative greeting", "err", err)
	}
	c.sleep(ctx, c.cfg.GreetingDelay)

	if err := c.carrier.Bridge(ctx, humanID, customerID); err != nil {
		// The association stays; hangup of either leg cleans it up.
		log.Error("bridge", "err", err)
		c.trail.Log(ctx, audit.EventTypeBridgeAbandoned, customerID, "bridge action failed")
		if err := c.carrier.Speak(ctx, customerID, bridgeApologyMessage); err != nil {
			log.Warn("apologize to customer", "err", err)
		}
		if err := c.carrier.Speak(ctx, humanID, bridgeApologyMessage); err != nil {
			log.Warn("apologize to representative", "err", err)
		}
		return
	}

	c.removePending(customerID, humanID)
	if _, err := c.store.Upsert(ctx, calls.CallRecord{CallID: customerID, CallType: calls.CallTypeHumanConnected}); err != nil {
		log.Error("store bridged customer", "err", err)
	}
	c.trail.Log(ctx, audit.EventTypeBridgeCompleted, customerID, "customer bridged to representative")
	log.Info("bridged")
}

// OnDTMF routes an IVR keypress.
func (c *Coordinator) OnDTMF(ctx context.Context, ev telnyx.Event) {
	id := ev.CallControlID
	log := logger.ForCall(ctx, id).With("digit", ev.Digit)

	switch ev.Digit {
	case "1", "0":
		if err := c.carrier.Speak(ctx, id, transferMessage); err != nil {
			log.Warn("transfer message", "err", err)
		}
		if err := c.ConnectToHuman(ctx, id); err != nil {
			log.Error("connect to human", "err", err)
			if err := c.carrier.Speak(ctx, id, noAnswerMessage); err != nil {
				log.Warn("apologize to customer", "err", err)
			}
		}
	case "2":
		err := c.carrier.GatherUsingSpeak(ctx, id, detailsPrompt, telnyx.GatherOptions{
			MinDigits:     1,
			MaxDigits:     20,
			TimeoutMillis: 30000,
		})
		if err != nil {
			log.Error("details gather", "err", err)
		}
	default:
		if err := c.carrier.Speak(ctx, id, invalidSelectionMessage); err != nil {
			log.Warn("invalid selection message", "err", err)
		}
		c.sleep(ctx, c.cfg.MenuRetryDelay)
		c.playMenu(ctx, id)
	}
}

// ConnectToHuman dials the configured representative number on behalf of a
// waiting customer leg and arms the no-answer timeout.
//
// A second request for the same customer replaces the first: the earlier
// representative leg is hung up and its association discarded.
func (c *Coordinator) ConnectToHuman(ctx context.Context, customerID string) error {
	log := logger.ForCall(ctx, customerID)

	c.mu.Lock()
	prev, hadPrev := c.pendingByCustomer[customerID]
	c.mu.Unlock()
	if hadPrev {
		c.removePending(customerID, prev.humanID)
		if err := c.carrier.Hangup(ctx, prev.humanID); err != nil {
			log.Warn("hang up replaced representative leg", "err", err)
		}
	}

	res, err := c.carrier.Dial(ctx, telnyx.DialRequest{To: c.cfg.HumanNumber})
	if err != nil {
		return err
	}
	humanID := res.CallControlID
	now := c.clock().UTC()

	if _, err := c.store.Upsert(ctx, calls.CallRecord{
		CallID:    humanID,
		Direction: calls.DirectionOutbound,
		ToNumber:  c.cfg.HumanNumber,
		Status:    calls.CallStatusInitiated,
		StartTime: &now,
		CallType:  calls.CallTypeHumanRepresentative,
	}); err != nil {
		log.Error("store representative leg", "err", err)
	}
	if _, err := c.store.Upsert(ctx, calls.CallRecord{CallID: customerID, CallType: calls.CallTypeHumanTransfer}); err != nil {
		log.Error("store customer transfer", "err", err)
	}

	c.mu.Lock()
	c.pendingByCustomer[customerID] = pendingBridge{humanID: humanID, dialedAt: now}
	c.pendingByHuman[humanID] = customerID
	c.timers[customerID] = time.AfterFunc(c.cfg.NoAnswerTimeout, func() {
		c.onNoAnswer(customerID, humanID)
	})
	c.mu.Unlock()

	c.trail.Log(ctx, audit.EventTypeCallPlaced, customerID, "representative dialed: "+humanID)
	log.Info("representative dialed", "human_call_id", humanID)
	return nil
}

// onNoAnswer fires when the representative never picked up. The association
// may have been removed by a bridge or hangup in the meantime, so existence
// is checked before any side effect.
func (c *Coordinator) onNoAnswer(customerID, humanID string) {
	ctx := context.Background()
	if !c.removePending(customerID, humanID) {
		return
	}
	log := c.log.With("call_id", customerID, "human_call_id", humanID)
	log.Info("representative did not answer in time")
	c.trail.Log(ctx, audit.EventTypeBridgeTimeout, customerID, "representative did not answer")

	if err := c.carrier.Hangup(ctx, humanID); err != nil {
		log.Warn("hang up unanswered representative leg", "err", err)
	}
	if err := c.carrier.Speak(ctx, customerID, noAnswerMessage); err != nil {
		log.Warn("no-answer message", "err", err)
	}
}

// OnHangup finalizes the record and tears down any association the leg was
// part of.
func (c *Coordinator) OnHangup(ctx context.Context, ev telnyx.Event) {
	id := ev.CallControlID
	log := logger.ForCall(ctx, id)
	now := c.clock().UTC()

	c.mu.Lock()
	ac, wasActive := c.active[id]
	delete(c.active, id)
	pb, isPendingCustomer := c.pendingByCustomer[id]
	customerID, isPendingHuman := c.pendingByHuman[id]
	c.mu.Unlock()

	upd := calls.CallRecord{CallID: id, Status: calls.CallStatusCompleted, EndTime: &now}
	if wasActive {
		// Duration comes from locally observed answer time, set exactly once.
		d := int(now.Sub(ac.startedAt).Round(time.Second).Seconds())
		if d < 0 {
			d = 0
		}
		upd.DurationSeconds = &d
	}
	if _, err := c.store.Upsert(ctx, upd); err != nil {
		log.Error("store hangup", "err", err)
	}

	if isPendingCustomer && c.removePending(id, pb.humanID) {
		// Customer gave up while the representative was still ringing.
		c.trail.Log(ctx, audit.EventTypeBridgeAbandoned, id, "customer hung up while representative ringing")
		if err := c.carrier.Hangup(ctx, pb.humanID); err != nil {
			log.Warn("hang up ringing representative leg", "err", err)
		}
	}
	if isPendingHuman && c.removePending(customerID, id) {
		c.trail.Log(ctx, audit.EventTypeBridgeAbandoned, customerID, "representative hung up before bridge")
		if err := c.carrier.Speak(ctx, customerID, noAnswerMessage); err != nil {
			log.Warn("no-answer message", "err", err)
		}
	}

	c.evaluateNotify(ctx, id)
}

// OnRecordingSaved stores the recording URL, mirroring it to permanent
// storage when a mirror is configured. Mirror failure keeps the original
// carrier URL as a degraded fallback.
func (c *Coordinator) OnRecordingSaved(ctx context.Context, ev telnyx.Event) {
	id := ev.CallControlID
	log := logger.ForCall(ctx, id)

	url := ev.RecordingURL
	if url == "" {
		log.Warn("recording saved without url")
		return
	}

	if c.mirror != nil {
		permanent, err := c.mirror.Mirror(ctx, id, url)
		if err != nil {
			log.Warn("mirror recording, keeping carrier url", "err", err)
		} else {
			url = permanent
		}
	}

	if _, err := c.store.Upsert(ctx, calls.CallRecord{
		CallID:       id,
		RecordingURL: &url,
		Transcript:   calls.StringPtr(transcriptPlaceholder),
	}); err != nil {
		log.Error("store recording", "err", err)
	}

	c.evaluateNotify(ctx, id)
}

func (c *Coordinator) playMenu(ctx context.Context, id string) {
	err := c.carrier.GatherUsingSpeak(ctx, id, menuPrompt, telnyx.GatherOptions{
		MinDigits:     1,
		MaxDigits:     1,
		TimeoutMillis: 15000,
	})
	if err != nil {
		log := logger.ForCall(ctx, id)
		log.Error("menu gather", "err", err)
		if err := c.carrier.Speak(ctx, id, bridgeApologyMessage); err != nil {
			log.Warn("apologize to customer", "err", err)
		}
	}
}

func (c *Coordinator) evaluateNotify(ctx context.Context, id string) {
	if c.notifier == nil {
		return
	}
	c.notifier.Evaluate(ctx, id)
}

// removePending drops the customer↔human association and disarms its timer.
// It reports whether the association was still present, which is the sole
// guard against a timeout firing after a bridge already completed.
func (c *Coordinator) removePending(customerID, humanID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	pb, ok := c.pendingByCustomer[customerID]
	if !ok || pb.humanID != humanID {
		return false
	}
	delete(c.pendingByCustomer, customerID)
	delete(c.pendingByHuman, humanID)
	if t, ok := c.timers[customerID]; ok {
		t.Stop()
		delete(c.timers, customerID)
	}
	return true
}

// PendingHuman returns the representative leg dialed for a customer, if one
// is still ringing.
func (c *Coordinator) PendingHuman(customerID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pb, ok := c.pendingByCustomer[customerID]
	return pb.humanID, ok
}

func (c *Coordinator) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
