package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type NotificationStatus string

const (
	NotificationNew     NotificationStatus = "NEW"
	NotificationSending NotificationStatus = "SENDING"
	NotificationBlocked NotificationStatus = "BLOCKED"
)

type NotificationKind string

const (
	KindMatched  NotificationKind = "MATCHED"
	KindMargin   NotificationKind = "MARGIN"
	KindUpdated  NotificationKind = "UPDATED"
	KindDeleted  NotificationKind = "DELETED"
	KindMigrated NotificationKind = "MIGRATED"
)

// IsMatch reports whether delivery to a group depends on the alert owner
// still being a member of it.
func (k NotificationKind) IsMatch() bool {
	return k == KindMatched || k == KindMargin
}

type RecipientType string

const (
	RecipientUser   RecipientType = "USER"
	RecipientServer RecipientType = "SERVER"
)

type Recipient struct {
	Type RecipientType
	ID   int64
}

func UserRecipient(userID int64) Recipient {
	return Recipient{Type: RecipientUser, ID: userID}
}

func ServerRecipient(serverID int64) Recipient {
	return Recipient{Type: RecipientServer, ID: serverID}
}

func (r Recipient) String() string {
	return string(r.Type) + ":" + strconv.FormatInt(r.ID, 10)
}

const (
	FieldAlertID      = "alertId"
	FieldAlertType    = "type"
	FieldUserID       = "userId"
	FieldServerID     = "serverId"
	FieldExchange     = "exchange"
	FieldPair         = "pair"
	FieldMessage      = "message"
	FieldStatus       = "status"
	FieldFromPrice    = "fromPrice"
	FieldToPrice      = "toPrice"
	FieldFromDate     = "fromDate"
	FieldToDate       = "toDate"
	FieldMargin       = "margin"
	FieldRepeat       = "repeat"
	FieldSnooze       = "snooze"
	FieldCandleOpen   = "candleOpenTime"
	FieldCandleClose  = "candleCloseTime"
	FieldOpen         = "open"
	FieldHigh         = "high"
	FieldLow          = "low"
	FieldClose        = "close"
	FieldReason       = "reason"
	FieldCount        = "count"
	FieldFromServerID = "fromServerId"
	FieldUpdated      = "field"
	FieldValue        = "value"
)

type Field struct {
	Key   string `json:"k"`
	Value string `json:"v"`
}

// Fields is an ordered key/value payload.
type Fields []Field

func (f Fields) Get(key string) (string, bool) {
	for _, field := range f {
		if field.Key == key {
			return field.Value, true
		}
	}
	return "", false
}

func (f Fields) with(key, value string) Fields {
	return append(f, Field{Key: key, Value: value})
}

// Notification is a durable event to deliver. Only Status and Recipient
// change after creation.
type Notification struct {
	ID           int64
	CreationDate time.Time
	Status       NotificationStatus
	Kind         NotificationKind
	Recipient    Recipient
	Locale       string
	Fields       Fields
}

// OwnerUserID returns the user owning the alert the notification is about.
func (n Notification) OwnerUserID() (int64, bool) {
	v, ok := n.Fields.Get(FieldUserID)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

const dateLayout = "2006-01-02 15:04 MST"

func NewMatchedNotification(now time.Time, locale string, match MatchingAlert) Notification {
	kind := KindMatched
	if match.Status == StatusMargin {
		kind = KindMargin
	}
	fields := alertFields(match.Alert).with(FieldStatus, string(match.Status))
	if c := match.Candlestick; c != nil {
		fields = fields.
			with(FieldCandleOpen, c.OpenTime.UTC().Format(time.RFC3339)).
			with(FieldCandleClose, c.CloseTime.UTC().Format(time.RFC3339)).
			with(FieldOpen, c.Open.String()).
			with(FieldHigh, c.High.String()).
			with(FieldLow, c.Low.String()).
			with(FieldClose, c.Close.String())
	}
	return newNotification(now, kind, match.Alert.Recipient(), locale, fields)
}

func NewDeletedNotification(now time.Time, locale string, alert Alert, reason string) Notification {
	fields := alertFields(alert).with(FieldReason, reason)
	return newNotification(now, KindDeleted, alert.Recipient(), locale, fields)
}

func NewMigratedNotification(now time.Time, locale string, userID, fromServerID, count int64, reason string) Notification {
	fields := Fields{}.
		with(FieldUserID, strconv.FormatInt(userID, 10)).
		with(FieldFromServerID, strconv.FormatInt(fromServerID, 10)).
		with(FieldCount, strconv.FormatInt(count, 10)).
		with(FieldReason, reason)
	return newNotification(now, KindMigrated, UserRecipient(userID), locale, fields)
}

func NewUpdatedNotification(now time.Time, locale string, alert Alert, field, value string) Notification {
	fields := alertFields(alert).with(FieldUpdated, field).with(FieldValue, value)
	return newNotification(now, KindUpdated, alert.Recipient(), locale, fields)
}

func newNotification(now time.Time, kind NotificationKind, recipient Recipient, locale string, fields Fields) Notification {
	if locale == "" {
		locale = DefaultLocale
	}
	return Notification{
		CreationDate: now,
		Status:       NotificationNew,
		Kind:         kind,
		Recipient:    recipient,
		Locale:       locale,
		Fields:       fields,
	}
}

func alertFields(a Alert) Fields {
	f := Fields{}.
		with(FieldAlertID, strconv.FormatInt(a.ID, 10)).
		with(FieldAlertType, string(a.Type)).
		with(FieldUserID, strconv.FormatInt(a.UserID, 10)).
		with(FieldServerID, strconv.FormatInt(a.ServerID, 10)).
		with(FieldExchange, a.Exchange).
		with(FieldPair, a.Pair).
		with(FieldMessage, a.Message)
	if a.Type != AlertRemainder {
		f = f.with(FieldFromPrice, a.FromPrice.String()).with(FieldToPrice, a.ToPrice.String())
	}
	if a.FromDate != nil {
		f = f.with(FieldFromDate, a.FromDate.UTC().Format(time.RFC3339))
	}
	if a.ToDate != nil {
		f = f.with(FieldToDate, a.ToDate.UTC().Format(time.RFC3339))
	}
	return f.
		with(FieldMargin, a.Margin.String()).
		with(FieldRepeat, strconv.Itoa(a.Repeat)).
		with(FieldSnooze, strconv.Itoa(a.SnoozeHours))
}

// Render builds the message text. Missing required fields yield
// ErrMalformedNotification.
func (n Notification) Render() (string, error) {
	switch n.Kind {
	case KindMatched, KindMargin:
		return n.renderMatch()
	case KindDeleted:
		return n.renderAlertEvent(func(b *strings.Builder, get func(string) string) {
			fmt.Fprintf(b, " was deleted: %s", get(FieldReason))
		})
	case KindUpdated:
		return n.renderAlertEvent(func(b *strings.Builder, get func(string) string) {
			fmt.Fprintf(b, " updated: %s is now %s", get(FieldUpdated), get(FieldValue))
		})
	case KindMigrated:
		return n.renderMigrated()
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrMalformedNotification, n.Kind)
}

func (n Notification) require(keys ...string) (func(string) string, error) {
	for _, key := range keys {
		if _, ok := n.Fields.Get(key); !ok {
			return nil, fmt.Errorf("%w: %s notification %d misses %q", ErrMalformedNotification, n.Kind, n.ID, key)
		}
	}
	return func(key string) string {
		v, _ := n.Fields.Get(key)
		return v
	}, nil
}

func (n Notification) renderMatch() (string, error) {
	get, err := n.require(FieldAlertID, FieldAlertType, FieldUserID, FieldExchange, FieldPair, FieldStatus)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Alert #%s (%s) %s on %s", get(FieldAlertID), get(FieldAlertType), get(FieldPair), get(FieldExchange))
	if n.Kind == KindMargin {
		b.WriteString(" entered its margin zone")
	} else {
		b.WriteString(" triggered")
	}
	b.WriteString("\n")
	if msg := get(FieldMessage); msg != "" {
		b.WriteString(msg)
		b.WriteString("\n")
	}
	if from, ok := n.Fields.Get(FieldFromPrice); ok {
		fmt.Fprintf(&b, "prices %s -> %s", from, get(FieldToPrice))
		if m := get(FieldMargin); m != "" && m != "0" {
			fmt.Fprintf(&b, " (margin %s)", m)
		}
		b.WriteString("\n")
	}
	if from, ok := n.Fields.Get(FieldFromDate); ok {
		b.WriteString("dates " + formatDate(from))
		if to, ok := n.Fields.Get(FieldToDate); ok {
			b.WriteString(" -> " + formatDate(to))
		}
		b.WriteString("\n")
	}
	if open, ok := n.Fields.Get(FieldCandleOpen); ok {
		fmt.Fprintf(&b, "candle %s O %s H %s L %s C %s\n", formatDate(open), get(FieldOpen), get(FieldHigh), get(FieldLow), get(FieldClose))
	}
	if n.Kind == KindMatched {
		repeat, err := strconv.Atoi(get(FieldRepeat))
		if err == nil && repeat > 0 {
			fmt.Fprintf(&b, "next check in %sh, %d repeat(s) left", get(FieldSnooze), repeat-1)
		} else {
			b.WriteString("alert disabled")
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (n Notification) renderAlertEvent(tail func(*strings.Builder, func(string) string)) (string, error) {
	get, err := n.require(FieldAlertID, FieldAlertType, FieldExchange, FieldPair)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Alert #%s (%s) %s on %s", get(FieldAlertID), get(FieldAlertType), get(FieldPair), get(FieldExchange))
	tail(&b, get)
	if msg := get(FieldMessage); msg != "" {
		b.WriteString("\n" + msg)
	}
	return b.String(), nil
}

func (n Notification) renderMigrated() (string, error) {
	get, err := n.require(FieldFromServerID, FieldCount, FieldReason)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s of your alerts from group %s now notify you privately: %s",
		get(FieldCount), get(FieldFromServerID), get(FieldReason)), nil
}

func formatDate(rfc3339 string) string {
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return rfc3339
	}
	return t.UTC().Format(dateLayout)
}
