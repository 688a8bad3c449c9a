package storefront

import (
	"go.uber.org/zap"
)

// Notice titles shown to people when a catalog call fails.
const (
	NoticeLoad          = "Can't reach backend"
	NoticeCreateProduct = "Couldn't save product"
	NoticeUpdateProduct = "Couldn't update product"
	NoticeRemoveProduct = "Couldn't remove product"
	NoticeAddFlavor     = "Couldn't add flavor"
	NoticeRemoveFlavor  = "Couldn't delete flavor"
	NoticeSetStock      = "Couldn't update stock"
)

type Notice struct {
	Title   string
	Message string
	Err     error
}

// Notifier surfaces notices to whoever is looking at the catalog.
type Notifier interface {
	Notify(Notice)
}

type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// LogNotifier writes notices at warn level.
type LogNotifier struct {
	Log *zap.Logger
}

func (l LogNotifier) Notify(n Notice) {
	if l.Log == nil {
		return
	}
	l.Log.Warn(n.Title, zap.String("message", n.Message), zap.Error(n.Err))
}

type multiNotifier []Notifier

func (m multiNotifier) Notify(n Notice) {
	for _, x := range m {
		x.Notify(n)
	}
}

// Notifiers fans a notice out to each non-nil notifier in turn.
func Notifiers(ns ...Notifier) Notifier {
	out := make(multiNotifier, 0, len(ns))
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func noticeFor(title string, err error) Notice {
	msg := "Unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Notice{Title: title, Message: msg, Err: err}
}
