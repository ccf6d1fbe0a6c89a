package firestore

import (
	"context"
	"time"

	domain "github.com/furnishop/api/internal/domain"
)

type cartRepository struct{ s *Store }

func (r *cartRepository) Get(ctx context.Context, cartID string) (domain.Cart, error) {
	doc, err := r.s.carts.Get(ctx, cartID)
	if err != nil {
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *cartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = time.Now().UTC()
	}
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = cart.UpdatedAt
	}
	if _, err := r.s.carts.Set(ctx, cart.ID, newCartDocument(cart)); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

func (r *cartRepository) Delete(ctx context.Context, cartID string) error {
	return r.s.carts.Delete(ctx, cartID)
}
