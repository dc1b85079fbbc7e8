package service

import (
	"encoding/json"
	"fmt"
	"time"

	"xinyuan_tech/billing-sync-service/internal/biz"
	"xinyuan_tech/billing-sync-service/internal/constants"

	"github.com/stripe/stripe-go/v79"
)

// decodeEvent 将已验证的提供方事件解析为强类型事件变体
// 未知事件类型返回 (nil, nil), 由调用方确认后丢弃
func decodeEvent(evt *stripe.Event) (biz.Event, error) {
	meta := biz.EventMeta{
		ProviderEventID: evt.ID,
		EventType:       string(evt.Type),
		OccurredAt:      time.Unix(evt.Created, 0).UTC(),
	}

	switch string(evt.Type) {
	case constants.EventCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("invalid checkout session payload: %w", err)
		}
		e := &biz.CheckoutCompleted{EventMeta: meta, UID: session.ClientReferenceID}
		if session.Subscription != nil {
			e.SubscriptionID = session.Subscription.ID
		}
		if session.Customer != nil {
			e.CustomerID = session.Customer.ID
		}
		return e, nil

	case constants.EventSubscriptionCreated:
		sub, err := decodeSubscription(evt)
		if err != nil {
			return nil, err
		}
		e := &biz.SubscriptionCreated{
			EventMeta:      meta,
			SubscriptionID: sub.ID,
			PeriodStart:    unixTime(sub.CurrentPeriodStart),
			PeriodEnd:      unixTime(sub.CurrentPeriodEnd),
		}
		if sub.Customer != nil {
			e.CustomerID = sub.Customer.ID
		}
		return e, nil

	case constants.EventSubscriptionUpdated:
		sub, err := decodeSubscription(evt)
		if err != nil {
			return nil, err
		}
		return &biz.SubscriptionUpdated{
			EventMeta:      meta,
			SubscriptionID: sub.ID,
			ProviderStatus: string(sub.Status),
			PeriodStart:    unixTime(sub.CurrentPeriodStart),
			PeriodEnd:      unixTime(sub.CurrentPeriodEnd),
		}, nil

	case constants.EventSubscriptionDeleted:
		sub, err := decodeSubscription(evt)
		if err != nil {
			return nil, err
		}
		canceledAt := unixTime(sub.CanceledAt)
		if canceledAt.IsZero() {
			canceledAt = meta.OccurredAt
		}
		return &biz.SubscriptionDeleted{
			EventMeta:      meta,
			SubscriptionID: sub.ID,
			CanceledAt:     canceledAt,
		}, nil

	case constants.EventPaymentSucceeded:
		inv, err := decodeInvoice(evt)
		if err != nil {
			return nil, err
		}
		e := &biz.PaymentSucceeded{
			EventMeta:  meta,
			InvoiceID:  inv.ID,
			AmountPaid: inv.AmountPaid,
			Currency:   string(inv.Currency),
		}
		if inv.Subscription != nil {
			e.SubscriptionID = inv.Subscription.ID
		}
		return e, nil

	case constants.EventPaymentFailed:
		inv, err := decodeInvoice(evt)
		if err != nil {
			return nil, err
		}
		e := &biz.PaymentFailed{
			EventMeta: meta,
			InvoiceID: inv.ID,
			AmountDue: inv.AmountDue,
			Currency:  string(inv.Currency),
		}
		if inv.Subscription != nil {
			e.SubscriptionID = inv.Subscription.ID
		}
		return e, nil
	}

	return nil, nil
}

func decodeSubscription(evt *stripe.Event) (*stripe.Subscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("invalid subscription payload: %w", err)
	}
	return &sub, nil
}

func decodeInvoice(evt *stripe.Event) (*stripe.Invoice, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(evt.Data.Raw, &inv); err != nil {
		return nil, fmt.Errorf("invalid invoice payload: %w", err)
	}
	return &inv, nil
}

func unixTime(ts int64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
