package ports

import "github.com/aretw0/chatflow/pkg/domain"

// Notifier surfaces transient notices to the operator.
type Notifier interface {
	Notify(n domain.Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(domain.Notice)

// Notify calls f(n).
func (f NotifierFunc) Notify(n domain.Notice) {
	f(n)
}

// NopNotifier discards notices.
type NopNotifier struct{}

// Notify does nothing.
func (NopNotifier) Notify(domain.Notice) {}
