package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/furnishop/api/internal/domain"
	pfirestore "github.com/furnishop/api/internal/platform/firestore"
	"github.com/furnishop/api/internal/repositories"
)

var errStaleOrder = errors.New("order state changed")

type orderRepository struct{ s *Store }

// Insert creates the order together with its order code reservation; tx.Create fails with
// AlreadyExists when either already exists.
func (r *orderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		codeRef, err := r.s.orderCodes.DocumentRef(ctx, order.OrderCode)
		if err != nil {
			return err
		}
		orderRef, err := r.s.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		if err := tx.Create(codeRef, uniqueKeyDocument{OrderID: order.ID}); err != nil {
			return err
		}
		for _, transID := range order.AttachedTransIDs() {
			transRef, err := r.s.transIDs.DocumentRef(ctx, transID)
			if err != nil {
				return err
			}
			if err := tx.Create(transRef, uniqueKeyDocument{OrderID: order.ID}); err != nil {
				return err
			}
		}
		return tx.Create(orderRef, newOrderDocument(order))
	}, r.s.tx("order.insert")...)
}

func (r *orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *orderRepository) FindByCode(ctx context.Context, orderCode string) (domain.Order, error) {
	return r.findByUniqueKey(ctx, r.s.orderCodes, orderCode)
}

func (r *orderRepository) FindByGatewayTransID(ctx context.Context, gatewayTransID string) (domain.Order, error) {
	return r.findByUniqueKey(ctx, r.s.transIDs, gatewayTransID)
}

func (r *orderRepository) findByUniqueKey(ctx context.Context, index *pfirestore.BaseRepository[uniqueKeyDocument], key string) (domain.Order, error) {
	if key == "" {
		return domain.Order{}, repositories.NewStoreError("order.find", repositories.KindNotFound, nil)
	}
	ref, err := index.Get(ctx, key)
	if err != nil {
		return domain.Order{}, err
	}
	return r.FindByID(ctx, ref.Data.OrderID)
}

func (r *orderRepository) UpdateStatus(ctx context.Context, update repositories.OrderStatusUpdate) (domain.Order, error) {
	var saved domain.Order
	err := r.s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, current, err := r.load(ctx, tx, update.OrderID)
		if err != nil {
			return err
		}
		if current.Status != string(update.ExpectedStatus) ||
			(update.ExpectedPaymentStatus != "" && current.PaymentStatus != string(update.ExpectedPaymentStatus)) {
			return repositories.NewStoreError("order.update_status", repositories.KindConflict, errStaleOrder)
		}
		current.Status = string(update.Status)
		updates := []firestore.Update{
			{Path: "status", Value: current.Status},
			{Path: "updatedAt", Value: update.UpdatedAt.UTC()},
		}
		if update.PaymentStatus != "" {
			current.PaymentStatus = string(update.PaymentStatus)
			updates = append(updates, firestore.Update{Path: "paymentStatus", Value: current.PaymentStatus})
		}
		if update.Entry != nil {
			entry := newHistoryDocument(*update.Entry)
			current.StatusHistory = append(current.StatusHistory, entry)
			updates = append(updates, firestore.Update{Path: "statusHistory", Value: firestore.ArrayUnion(entry)})
		}
		current.UpdatedAt = update.UpdatedAt.UTC()
		saved = current.toDomain(update.OrderID)
		return tx.Update(ref, updates)
	}, r.s.tx("order.update_status")...)
	if err != nil {
		return domain.Order{}, err
	}
	return saved, nil
}

func (r *orderRepository) AttachPayment(ctx context.Context, attachment repositories.OrderPaymentAttachment) (domain.Order, error) {
	var saved domain.Order
	err := r.s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, current, err := r.load(ctx, tx, attachment.OrderID)
		if err != nil {
			return err
		}
		payable := current.PaymentStatus == string(domain.PaymentStatusUnpaid) ||
			current.PaymentStatus == string(domain.PaymentStatusPending)
		if current.Status != string(domain.OrderStatusPending) || !payable {
			return repositories.NewStoreError("order.attach_payment", repositories.KindConflict, errStaleOrder)
		}
		transRef, err := r.s.transIDs.DocumentRef(ctx, attachment.GatewayTransID)
		if err != nil {
			return err
		}
		// Earlier transaction ids keep their index entries so late callbacks still resolve.
		if err := tx.Create(transRef, uniqueKeyDocument{OrderID: attachment.OrderID}); err != nil {
			return err
		}
		current.GatewayTransIDs = append(current.GatewayTransIDs, attachment.GatewayTransID)
		current.GatewayTransID = attachment.GatewayTransID
		current.GatewayTransactionRef = attachment.GatewayTransactionRef
		current.PaymentURL = attachment.PaymentURL
		current.PaymentStatus = string(domain.PaymentStatusPending)
		current.UpdatedAt = attachment.UpdatedAt.UTC()
		saved = current.toDomain(attachment.OrderID)
		return tx.Update(ref, []firestore.Update{
			{Path: "gatewayTransId", Value: current.GatewayTransID},
			{Path: "gatewayTransIds", Value: firestore.ArrayUnion(attachment.GatewayTransID)},
			{Path: "gatewayTransactionRef", Value: current.GatewayTransactionRef},
			{Path: "paymentUrl", Value: current.PaymentURL},
			{Path: "paymentStatus", Value: current.PaymentStatus},
			{Path: "updatedAt", Value: current.UpdatedAt},
		})
	}, r.s.tx("order.attach_payment")...)
	if err != nil {
		return domain.Order{}, err
	}
	return saved, nil
}

func (r *orderRepository) Delete(ctx context.Context, orderID string, expectedStatus domain.OrderStatus) error {
	return r.s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, current, err := r.load(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if current.Status != string(expectedStatus) {
			return repositories.NewStoreError("order.delete", repositories.KindConflict, errStaleOrder)
		}
		codeRef, err := r.s.orderCodes.DocumentRef(ctx, current.OrderCode)
		if err != nil {
			return err
		}
		if err := tx.Delete(codeRef); err != nil {
			return err
		}
		for _, transID := range current.toDomain(orderID).AttachedTransIDs() {
			transRef, err := r.s.transIDs.DocumentRef(ctx, transID)
			if err != nil {
				return err
			}
			if err := tx.Delete(transRef); err != nil {
				return err
			}
		}
		return tx.Delete(ref)
	}, r.s.tx("order.delete")...)
}

func (r *orderRepository) load(ctx context.Context, tx *firestore.Transaction, orderID string) (*firestore.DocumentRef, orderDocument, error) {
	ref, err := r.s.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return nil, orderDocument{}, err
	}
	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return nil, orderDocument{}, repositories.NewStoreError("order.load", repositories.KindNotFound, err)
	}
	if err != nil {
		return nil, orderDocument{}, err
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, orderDocument{}, err
	}
	return ref, doc, nil
}
