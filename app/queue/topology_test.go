package queue

import (
	"errors"
	"testing"
	"time"
)

func testTopology() Topology {
	return Topology{
		Exchange:          DefaultExchange,
		WorkQueue:         DefaultWorkQueue,
		InitialDelayQueue: DefaultInitialDelayQueue,
		RetryDelayQueue:   DefaultRetryDelayQueue,
		InitialDelay:      5 * time.Second,
		RetryDelay:        30 * time.Second,
	}
}

func TestTopologyDeclare(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	if err := testTopology().Declare(ch); err != nil {
		t.Fatalf("Declare: %v", err)
	}

	if len(ch.exchanges) != 0 {
		t.Fatalf("amq.direct must not be declared, got %v", ch.exchanges)
	}
	if len(ch.queues) != 3 {
		t.Fatalf("expected 3 queues, got %d", len(ch.queues))
	}

	work := ch.queues[0]
	if work.name != "messages" {
		t.Fatalf("expected work queue first, got %s", work.name)
	}
	if work.args["x-dead-letter-exchange"] != "" || work.args["x-dead-letter-routing-key"] != "retry_delay" {
		t.Fatalf("unexpected work queue args: %v", work.args)
	}

	initial := ch.queues[1]
	if initial.name != "work_delay" || initial.args["x-message-ttl"] != int64(5000) {
		t.Fatalf("unexpected initial delay queue: %+v", initial)
	}
	if initial.args["x-dead-letter-exchange"] != "amq.direct" || initial.args["x-dead-letter-routing-key"] != "messages" {
		t.Fatalf("unexpected initial delay dead-letter args: %v", initial.args)
	}

	retry := ch.queues[2]
	if retry.name != "retry_delay" || retry.args["x-message-ttl"] != int64(30000) {
		t.Fatalf("unexpected retry delay queue: %+v", retry)
	}

	if len(ch.bindings) != 1 || ch.bindings[0] != (binding{queue: "messages", key: "messages", exchange: "amq.direct"}) {
		t.Fatalf("unexpected bindings: %v", ch.bindings)
	}
}

func TestTopologyDeclaresCustomExchange(t *testing.T) {
	t.Parallel()

	topo := testTopology()
	topo.Exchange = "mailqueue"
	ch := newFakeChannel()
	if err := topo.Declare(ch); err != nil {
		t.Fatalf("Declare: %v", err)
	}
	if len(ch.exchanges) != 1 || ch.exchanges[0] != "mailqueue" {
		t.Fatalf("expected custom exchange declared, got %v", ch.exchanges)
	}
}

func TestTopologySharedDelayQueue(t *testing.T) {
	t.Parallel()

	topo := testTopology()
	topo.RetryDelayQueue = topo.InitialDelayQueue
	topo.RetryDelay = topo.InitialDelay

	ch := newFakeChannel()
	if err := topo.Declare(ch); err != nil {
		t.Fatalf("Declare: %v", err)
	}
	if len(ch.queues) != 2 {
		t.Fatalf("expected shared delay queue declared once, got %d queues", len(ch.queues))
	}
}

func TestTopologyValidate(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Topology){
		"missing exchange":     func(t *Topology) { t.Exchange = "" },
		"work equals delay":    func(t *Topology) { t.InitialDelayQueue = t.WorkQueue },
		"zero delay":           func(t *Topology) { t.RetryDelay = 0 },
		"shared queue two ttl": func(t *Topology) { t.RetryDelayQueue = t.InitialDelayQueue },
	}
	for name, mutate := range cases {
		topo := testTopology()
		mutate(&topo)
		if err := topo.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestTopologyDeclareError(t *testing.T) {
	t.Parallel()

	boom := errors.New("precondition failed")
	ch := newFakeChannel()
	ch.declareErr = boom
	if err := testTopology().Declare(ch); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped declare error, got %v", err)
	}
}
