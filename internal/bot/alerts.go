package bot

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"market-echo/internal/domain"

	tele "gopkg.in/telebot.v3"
)

type messageSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// subscription filters watchlist updates for one chat. An empty symbol set
// means every watchlist symbol.
type subscription map[string]struct{}

func (s subscription) wants(symbol string) bool {
	if len(s) == 0 {
		return true
	}
	_, ok := s[symbol]
	return ok
}

func (s subscription) describe() string {
	if len(s) == 0 {
		return "all watchlist symbols"
	}
	symbols := make([]string, 0, len(s))
	for sym := range s {
		symbols = append(symbols, sym)
	}
	slices.Sort(symbols)
	return strings.Join(symbols, ", ")
}

// AlertDispatcher pushes watchlist recommendation changes to subscribed
// chats, each receiving only the symbols it asked for.
type AlertDispatcher struct {
	sender messageSender

	mu   sync.RWMutex
	subs map[int64]subscription
}

func NewAlertDispatcher(sender messageSender) *AlertDispatcher {
	return &AlertDispatcher{
		sender: sender,
		subs:   make(map[int64]subscription),
	}
}

// Subscribe enables alerts for chatID. Symbols replace any previous filter;
// none means all. It reports whether the chat was newly subscribed.
func (d *AlertDispatcher) Subscribe(chatID int64, symbols ...string) bool {
	filter := make(subscription, len(symbols))
	for _, s := range symbols {
		if s = domain.NormalizeSymbol(s); s != "" {
			filter[s] = struct{}{}
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	_, existed := d.subs[chatID]
	d.subs[chatID] = filter
	return !existed
}

func (d *AlertDispatcher) Unsubscribe(chatID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.subs[chatID]; !ok {
		return false
	}
	delete(d.subs, chatID)
	return true
}

// Subscription returns a readable description of the chat's filter and
// whether it is subscribed at all.
func (d *AlertDispatcher) Subscription(chatID int64) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	sub, ok := d.subs[chatID]
	if !ok {
		return "", false
	}
	return sub.describe(), true
}

func (d *AlertDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// NotifyAnalyses sends each subscriber one message with the results it
// filters for. Chats with no matching result get nothing. Delivery continues
// past individual send failures, which are joined into the returned error.
func (d *AlertDispatcher) NotifyAnalyses(ctx context.Context, results []domain.AnalysisResult) error {
	if d == nil || d.sender == nil || len(results) == 0 {
		return nil
	}

	var errs []error
	for _, t := range d.targets(results) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := d.sender.Send(&tele.Chat{ID: t.chatID}, formatAlertMessage(t.results)); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", t.chatID, err))
		}
	}
	return errors.Join(errs...)
}

type alertTarget struct {
	chatID  int64
	results []domain.AnalysisResult
}

func (d *AlertDispatcher) targets(results []domain.AnalysisResult) []alertTarget {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]alertTarget, 0, len(d.subs))
	for chatID, sub := range d.subs {
		var matched []domain.AnalysisResult
		for _, r := range results {
			if sub.wants(r.Symbol) {
				matched = append(matched, r)
			}
		}
		if len(matched) > 0 {
			out = append(out, alertTarget{chatID: chatID, results: matched})
		}
	}
	slices.SortFunc(out, func(a, b alertTarget) int { return cmp.Compare(a.chatID, b.chatID) })
	return out
}

// parseAlertArgs reads "/alerts [on|off|status] [SYMBOL...]".
func parseAlertArgs(args []string) (mode string, symbols []string, err error) {
	if len(args) == 0 {
		return "status", nil, nil
	}

	mode = strings.ToLower(strings.TrimSpace(args[0]))
	switch mode {
	case "on":
		return mode, args[1:], nil
	case "off", "status":
		if len(args) > 1 {
			return "", nil, fmt.Errorf("%s takes no symbols", mode)
		}
		return mode, nil, nil
	default:
		return "", nil, fmt.Errorf("invalid mode %q", args[0])
	}
}
