package backend

import (
	"context"
	"net/http"
	"net/url"
)

// FavoritesClient calls the bearer-authorized wishlist endpoints.
type FavoritesClient struct {
	c *Client
}

func NewFavoritesClient(c *Client) *FavoritesClient {
	return &FavoritesClient{c: c}
}

func favoritePath(productID string) string {
	return "/favorites/" + url.PathEscape(productID)
}

func (f *FavoritesClient) List(ctx context.Context, token string) (*FavoriteList, error) {
	var list FavoriteList
	if err := f.c.Do(ctx, http.MethodGet, "/favorites", nil, &list, Bearer(token)); err != nil {
		return nil, err
	}
	return &list, nil
}

func (f *FavoritesClient) Add(ctx context.Context, token, productID string) error {
	return f.c.Do(ctx, http.MethodPost, "/favorites", FavoriteRequest{ProductID: productID}, nil, Bearer(token))
}

func (f *FavoritesClient) Remove(ctx context.Context, token, productID string) error {
	return f.c.Do(ctx, http.MethodDelete, favoritePath(productID), nil, nil, Bearer(token))
}

func (f *FavoritesClient) Check(ctx context.Context, token, productID string) (bool, error) {
	var res FavoriteCheck
	if err := f.c.Do(ctx, http.MethodGet, favoritePath(productID)+"/check", nil, &res, Bearer(token)); err != nil {
		return false, err
	}
	return res.IsFavorite, nil
}

// ProductClient reads catalog records.
type ProductClient struct {
	c *Client
}

func NewProductClient(c *Client) *ProductClient {
	return &ProductClient{c: c}
}

func (p *ProductClient) Get(ctx context.Context, id string) (*Product, error) {
	var product Product
	if err := p.c.Do(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}
