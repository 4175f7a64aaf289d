package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dukerupert/cartsync/internal/domain"
	"github.com/dukerupert/cartsync/internal/eventbus"
)

func (a *app) withProduct(args []string, fn func(id string) error) error {
	if len(args) != 1 {
		return errors.New("expected one product id")
	}
	return fn(args[0])
}

func (a *app) showCart(ctx context.Context) error {
	cart, err := a.engine.Carts.GetCart(ctx)
	return a.printCart(cart, err)
}

func (a *app) add(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: add <product> [qty]")
	}
	qty := 1
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid quantity %q", args[1])
		}
		qty = n
	}
	cart, err := a.engine.Carts.AddItem(ctx, args[0], qty)
	return a.printCart(cart, err)
}

func (a *app) set(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: set <product> <qty>")
	}
	qty, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid quantity %q", args[1])
	}
	cart, err := a.engine.Carts.UpdateItemQuantity(ctx, args[0], qty)
	return a.printCart(cart, err)
}

func (a *app) coupon(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: coupon <code>|-remove")
	}
	if args[0] == "-remove" {
		cart, err := a.engine.Carts.RemoveCoupon(ctx)
		return a.printCart(cart, err)
	}
	cart, err := a.engine.Carts.ApplyCoupon(ctx, args[0])
	return a.printCart(cart, err)
}

func (a *app) summary(ctx context.Context) error {
	s, err := a.engine.Carts.GetSummary(ctx)
	if err != nil {
		return err
	}
	total, err := a.engine.Carts.GetCartTotal(ctx)
	if err != nil {
		return err
	}
	v, err := a.engine.Carts.ValidateCart(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "lines\t%d\n", s.LineCount)
	fmt.Fprintf(w, "items\t%d\n", s.TotalItems)
	fmt.Fprintf(w, "subtotal\t%s\n", s.TotalPrice.StringFixed(2))
	if s.CouponCode != "" {
		fmt.Fprintf(w, "coupon\t%s (-%s)\n", s.CouponCode, s.DiscountAmount.StringFixed(2))
	}
	fmt.Fprintf(w, "total\t%s\n", total.StringFixed(2))
	for _, is := range v.Issues {
		fmt.Fprintf(w, "issue\t%s: %s (available %d)\n", is.ProductID, is.Reason, is.Available)
	}
	return w.Flush()
}

func (a *app) watch(ctx context.Context) error {
	for _, topic := range eventbus.Topics {
		a.engine.Bus.Subscribe(topic, func(_ context.Context, ev eventbus.Event) {
			if ev.ProductID != "" {
				fmt.Printf("%s %s\n", ev.Topic, ev.ProductID)
				return
			}
			fmt.Println(ev.Topic)
		})
	}
	fmt.Println("watching for cart and wishlist changes, ctrl-c to stop")
	<-ctx.Done()
	return nil
}

func (a *app) printCart(cart *domain.Cart, err error) error {
	if err != nil {
		return err
	}

	owner := "guest"
	if cart.Identity.Kind == domain.IdentityAuthenticated {
		owner = "account"
	}
	if cart.IsEmpty() {
		fmt.Printf("%s cart is empty\n", owner)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "PRODUCT\tNAME\tQTY\tUNIT\tTOTAL\n")
	for _, l := range cart.Lines {
		name := ""
		if l.Product != nil {
			name = l.Product.Name
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", l.ProductID, name, l.Quantity,
			l.UnitPrice.StringFixed(2), l.TotalPrice.StringFixed(2))
	}
	fmt.Fprintf(w, "\t\t%d\t\t%s\n", cart.TotalItems, cart.EffectiveTotal().StringFixed(2))
	if err := w.Flush(); err != nil {
		return err
	}
	if cart.CouponCode != "" {
		fmt.Printf("%s cart, coupon %s applied\n", owner, cart.CouponCode)
	}
	return nil
}

func printWishlist(list *domain.Wishlist, err error) error {
	if err != nil {
		return err
	}
	if len(list.Items) == 0 {
		fmt.Println("wishlist is empty")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "PRODUCT\tNAME\tSAVED\n")
	for _, it := range list.Items {
		name := ""
		if it.Product != nil {
			name = it.Product.Name
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", it.ProductID, name, it.AddedAt.Format("2006-01-02"))
	}
	return w.Flush()
}
