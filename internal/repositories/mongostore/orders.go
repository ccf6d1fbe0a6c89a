package mongostore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/furnishop/api/internal/domain"
	"github.com/furnishop/api/internal/repositories"
)

type orderRepository struct {
	coll *mongo.Collection
}

func (r *orderRepository) Insert(ctx context.Context, order domain.Order) error {
	_, err := r.coll.InsertOne(ctx, orderToDocument(order))
	return wrapError("order.insert", err)
}

func (r *orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	return r.findOne(ctx, "order.find_by_id", bson.M{"_id": orderID})
}

func (r *orderRepository) FindByCode(ctx context.Context, orderCode string) (domain.Order, error) {
	return r.findOne(ctx, "order.find_by_code", bson.M{"order_code": orderCode})
}

func (r *orderRepository) FindByGatewayTransID(ctx context.Context, gatewayTransID string) (domain.Order, error) {
	if gatewayTransID == "" {
		return domain.Order{}, repositories.NewStoreError("order.find_by_trans_id", repositories.KindNotFound, nil)
	}
	return r.findOne(ctx, "order.find_by_trans_id", bson.M{"gateway_trans_ids": gatewayTransID})
}

func (r *orderRepository) findOne(ctx context.Context, op string, filter bson.M) (domain.Order, error) {
	var doc orderDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return domain.Order{}, wrapError(op, err)
	}
	return doc.toDomain(), nil
}

// UpdateStatus sets status and pushes the history entry in one conditional update.
func (r *orderRepository) UpdateStatus(ctx context.Context, update repositories.OrderStatusUpdate) (domain.Order, error) {
	filter := bson.M{"_id": update.OrderID, "status": string(update.ExpectedStatus)}
	if update.ExpectedPaymentStatus != "" {
		filter["payment_status"] = string(update.ExpectedPaymentStatus)
	}
	set := bson.M{
		"status":     string(update.Status),
		"updated_at": update.UpdatedAt.UTC(),
	}
	if update.PaymentStatus != "" {
		set["payment_status"] = string(update.PaymentStatus)
	}
	mutation := bson.M{"$set": set}
	if update.Entry != nil {
		mutation["$push"] = bson.M{"status_history": historyToDocument(*update.Entry)}
	}
	return r.conditionalUpdate(ctx, "order.update_status", update.OrderID, filter, mutation)
}

func (r *orderRepository) AttachPayment(ctx context.Context, attachment repositories.OrderPaymentAttachment) (domain.Order, error) {
	filter := bson.M{
		"_id":    attachment.OrderID,
		"status": string(domain.OrderStatusPending),
		"payment_status": bson.M{"$in": bson.A{
			string(domain.PaymentStatusUnpaid),
			string(domain.PaymentStatusPending),
		}},
	}
	// Earlier ids stay in gateway_trans_ids so late callbacks for a retried payment resolve.
	mutation := bson.M{
		"$set": bson.M{
			"gateway_trans_id":        attachment.GatewayTransID,
			"gateway_transaction_ref": attachment.GatewayTransactionRef,
			"payment_url":             attachment.PaymentURL,
			"payment_status":          string(domain.PaymentStatusPending),
			"updated_at":              attachment.UpdatedAt.UTC(),
		},
		"$addToSet": bson.M{"gateway_trans_ids": attachment.GatewayTransID},
	}
	return r.conditionalUpdate(ctx, "order.attach_payment", attachment.OrderID, filter, mutation)
}

func (r *orderRepository) conditionalUpdate(ctx context.Context, op, orderID string, filter, mutation bson.M) (domain.Order, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc orderDocument
	err := r.coll.FindOneAndUpdate(ctx, filter, mutation, opts).Decode(&doc)
	if err == nil {
		return doc.toDomain(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Order{}, wrapError(op, err)
	}
	return domain.Order{}, r.missOrStale(ctx, op, orderID)
}

func (r *orderRepository) Delete(ctx context.Context, orderID string, expectedStatus domain.OrderStatus) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": orderID, "status": string(expectedStatus)})
	if err != nil {
		return wrapError("order.delete", err)
	}
	if res.DeletedCount == 1 {
		return nil
	}
	return r.missOrStale(ctx, "order.delete", orderID)
}

// missOrStale distinguishes a missing order from one whose state no longer matches.
func (r *orderRepository) missOrStale(ctx context.Context, op, orderID string) error {
	count, err := r.coll.CountDocuments(ctx, bson.M{"_id": orderID})
	if err != nil {
		return wrapError(op, err)
	}
	if count == 0 {
		return repositories.NewStoreError(op, repositories.KindNotFound, nil)
	}
	return repositories.NewStoreError(op, repositories.KindConflict, errStaleOrder)
}
