package model

import (
	"sync"
)

// notifier fans live timeline events out to subscribed channels. Every
// subscriber receives each published event exactly once, in publish
// order. Sends block, so subscribers should use buffered channels if they
// cannot keep up.
type notifier struct {
	sync.RWMutex
	subscribers []chan *TimelineEvent
}

func newNotifier() *notifier {
	return &notifier{}
}

func (n *notifier) subscribe(ch chan *TimelineEvent) {
	n.Lock()
	defer n.Unlock()
	n.subscribers = append(n.subscribers, ch)
}

func (n *notifier) unsubscribe(ch chan *TimelineEvent) {
	n.Lock()
	defer n.Unlock()
	for i, sub := range n.subscribers {
		if sub == ch {
			n.subscribers = append(n.subscribers[:i], n.subscribers[i+1:]...)
			return
		}
	}
}

func (n *notifier) publish(tl *TimelineEvent) {
	n.RLock()
	subscribers := make([]chan *TimelineEvent, len(n.subscribers))
	copy(subscribers, n.subscribers)
	n.RUnlock()

	for _, sub := range subscribers {
		sub <- tl
	}
}
