package core

type IEvent interface {
	GetId() string // Returns the unique identifier of the event.
}

// Notifier is the notification surface: it receives user-facing status and
// error events. Presentation is the implementer's concern.
type Notifier interface {
	Notify(event IEvent)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(event IEvent)

func (f NotifierFunc) Notify(event IEvent) { f(event) }

// MultiNotifier fans an event out to every non-nil notifier in order.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(event IEvent) {
	for _, n := range m {
		if n != nil {
			n.Notify(event)
		}
	}
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) Notify(IEvent) {}
