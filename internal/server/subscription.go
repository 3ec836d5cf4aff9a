package server

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"vanillasomethin/sitecms/internal/utils"
	"vanillasomethin/sitecms/pkg/contentproto"

	"github.com/golang/glog"
)

// Subscription is a client streaming changes of the content document
type Subscription struct {
	ID           string
	W            http.ResponseWriter
	F            http.Flusher
	LastResource []byte // last document sent, patches are computed against it
	LastHash     string
}

// Hub holds the latest public copy of the content document and fans changes
// out to subscribers
type Hub struct {
	mu            sync.RWMutex
	sendMu        sync.Mutex // serializes writes to subscriber streams
	subscriptions map[string]Subscription
	current       []byte
	hash          string
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subscriptions: make(map[string]Subscription)}
}

// Current returns the latest document and its version, if one is known
func (h *Hub) Current() ([]byte, string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current == nil {
		return nil, "", false
	}
	return h.current, h.hash, true
}

// Seed records data as the current document unless one is already known
func (h *Hub) Seed(data []byte) ([]byte, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		h.current = bytes.Clone(data)
		h.hash = utils.CalculateHash(data)
	}
	return h.current, h.hash
}

// Update records a new version of the document and notifies subscribers.
// It reports whether the version changed.
func (h *Hub) Update(data []byte) bool {
	hash := utils.CalculateHash(data)

	data = bytes.Clone(data)

	h.mu.Lock()
	if hash == h.hash {
		h.mu.Unlock()
		return false
	}
	h.current = data
	h.hash = hash
	h.mu.Unlock()

	h.notifySubscribers()
	return true
}

// errNoDocument is returned when subscribing before any version is known
var errNoDocument = errors.New("no content document to subscribe to")

// Subscribe sends the current version to w and registers it for updates. The
// snapshot is taken under sendMu so no update can fall between the two.
func (h *Hub) Subscribe(w http.ResponseWriter, f http.Flusher) (string, error) {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	h.mu.RLock()
	initial, hash := h.current, h.hash
	h.mu.RUnlock()
	if initial == nil {
		return "", errNoDocument
	}

	sub := Subscription{
		ID:           utils.GenerateRandomID(),
		W:            w,
		F:            f,
		LastResource: initial,
		LastHash:     hash,
	}
	// updates wait for sendMu, so registering before the snapshot is written is safe
	h.mu.Lock()
	h.subscriptions[sub.ID] = sub
	h.mu.Unlock()

	if err := h.sendFullUpdate(sub, initial, hash); err != nil {
		h.mu.Lock()
		delete(h.subscriptions, sub.ID)
		h.mu.Unlock()
		return "", err
	}

	glog.V(1).Infof("Added subscription %s", sub.ID)
	return sub.ID, nil
}

// RemoveSubscription removes a subscription. Once it returns nothing is written
// to the subscriber's stream anymore.
func (h *Hub) RemoveSubscription(subID string) {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.subscriptions[subID]; exists {
		delete(h.subscriptions, subID)
		glog.V(1).Infof("Removed subscription %s", subID)
	}
}

// Count returns the number of live subscriptions
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions)
}

// notifySubscribers sends the latest version to every subscriber
func (h *Hub) notifySubscribers() {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	h.mu.RLock()
	newData, newHash := h.current, h.hash
	subs := make([]Subscription, 0, len(h.subscriptions))
	for _, sub := range h.subscriptions {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	if len(subs) == 0 {
		return
	}
	glog.V(1).Infof("Notifying %d subscribers of version %s", len(subs), newHash)

	for _, sub := range subs {
		if sub.LastHash == newHash {
			glog.V(1).Infof("Document unchanged for subscription %s, skipping update", sub.ID)
			continue
		}

		var err error
		if len(sub.LastResource) == 0 {
			err = h.sendFullUpdate(sub, newData, newHash)
		} else if err = h.sendPatchUpdate(sub, newData, newHash); err != nil {
			glog.Warningf("Error sending patch update: %v, falling back to full update", err)
			err = h.sendFullUpdate(sub, newData, newHash)
		}
		if err != nil {
			glog.V(1).Infof("Subscription %s write failed: %v", sub.ID, err)
			continue
		}

		h.mu.Lock()
		if subscription, exists := h.subscriptions[sub.ID]; exists {
			subscription.LastResource = newData
			subscription.LastHash = newHash
			h.subscriptions[sub.ID] = subscription
		}
		h.mu.Unlock()
	}
}

// sendFullUpdate writes a whole version to a subscriber
func (h *Hub) sendFullUpdate(sub Subscription, data []byte, hash string) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Version: %s\r\n", utils.QuoteVersion(hash))
	fmt.Fprintf(&buf, "Parents: \r\n")
	fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(data))
	fmt.Fprintf(&buf, "\r\n")
	buf.Write(data)
	// separator for the subscription stream
	fmt.Fprintf(&buf, "\r\n\r\n\r\n\r\n\r\n")

	if _, err := sub.W.Write(buf.Bytes()); err != nil {
		return err
	}
	sub.F.Flush()
	return nil
}

// sendPatchUpdate writes the JSON patch from the subscriber's last version
func (h *Hub) sendPatchUpdate(sub Subscription, newData []byte, newHash string) error {
	operations, err := contentproto.Diff(sub.LastResource, newData)
	if err != nil {
		return err
	}
	if len(operations) == 0 {
		return nil
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Version: %s\r\n", utils.QuoteVersion(newHash))
	fmt.Fprintf(&buf, "Parents: %s\r\n", utils.QuoteVersion(sub.LastHash))
	if len(operations) > 1 {
		fmt.Fprintf(&buf, "Patches: %d\r\n\r\n", len(operations))
	}

	for i, op := range operations {
		if i > 0 {
			fmt.Fprintf(&buf, "\r\n\r\n")
		}
		value := op.Value
		if value == nil {
			value = []byte("null")
		}
		fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(value))
		fmt.Fprintf(&buf, "Content-Range: %s %s\r\n", op.Op, op.Path)
		fmt.Fprintf(&buf, "\r\n")
		buf.Write(value)
	}
	fmt.Fprintf(&buf, "\r\n\r\n\r\n\r\n\r\n")

	if _, err := sub.W.Write(buf.Bytes()); err != nil {
		return err
	}
	sub.F.Flush()
	return nil
}
