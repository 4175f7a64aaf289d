// Command cartsync drives the cart engine from a terminal: it keeps a guest
// session between runs and switches to the account cart after login.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dukerupert/cartsync/internal"
	"github.com/dukerupert/cartsync/internal/auth"
	"github.com/dukerupert/cartsync/internal/bootstrap"
	"github.com/dukerupert/cartsync/internal/domain"
	"github.com/dukerupert/cartsync/internal/storage"
)

// tokenKey holds the signed-in id token between runs.
const tokenKey = "id_token"

const usage = `usage: cartsync [flags] <command> [args]

commands:
  cart                      show the cart
  add <product> [qty]       add a product (default qty 1)
  set <product> <qty>       set a line's quantity
  remove <product>          remove a line
  inc <product>             add one
  dec <product>             remove one
  clear                     empty the cart
  summary                   totals and stock validation
  coupon <code>|-remove     apply or remove a coupon
  wishlist                  show saved products
  fav <product>             save a product
  unfav <product>           forget a saved product
  login <id-token>          sign in and merge the guest cart
  logout                    sign out
  watch                     print change events until interrupted
`

type app struct {
	engine *bootstrap.Engine
	store  storage.Store
	logger *slog.Logger
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cartsync", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}
	if *verbose {
		cfg.LogLevel = "debug"
	} else if cfg.LogLevel == "info" {
		cfg.LogLevel = "warn"
	}
	// The CLI keeps its guest session between runs.
	if cfg.Storage.Provider == "memory" {
		cfg.Storage.Provider = "local"
	}
	logger := internal.NewLogger(os.Stderr, cfg.Env, cfg.LogLevel)

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	// The engine only closes stores it built itself.
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	engine, err := bootstrap.NewEngine(cfg, logger, bootstrap.WithStore(store))
	if err != nil {
		return err
	}
	defer engine.Close()

	a := &app{engine: engine, store: store, logger: logger}
	a.restoreLogin(ctx)

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	return a.dispatch(ctx, cmd, rest)
}

// restoreLogin signs the saved token back in. Login hooks run again, so a
// guest cart built while signed out is merged now.
func (a *app) restoreLogin(ctx context.Context) {
	raw, err := a.store.Get(ctx, tokenKey)
	if err != nil {
		return
	}
	token := strings.TrimSpace(string(raw))
	if _, err := a.engine.Auth.Login(ctx, token); err != nil {
		a.logger.Info("saved login is no longer valid", "error", err)
		_ = a.store.Delete(ctx, tokenKey)
	}
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "cart":
		return a.showCart(ctx)
	case "add":
		return a.add(ctx, args)
	case "set":
		return a.set(ctx, args)
	case "remove":
		return a.withProduct(args, func(id string) error {
			cart, err := a.engine.Carts.RemoveItem(ctx, id)
			return a.printCart(cart, err)
		})
	case "inc":
		return a.withProduct(args, func(id string) error {
			cart, err := a.engine.Carts.IncrementItem(ctx, id)
			return a.printCart(cart, err)
		})
	case "dec":
		return a.withProduct(args, func(id string) error {
			cart, err := a.engine.Carts.DecrementItem(ctx, id)
			return a.printCart(cart, err)
		})
	case "clear":
		if err := a.engine.Carts.ClearCart(ctx); err != nil {
			return err
		}
		fmt.Println("cart cleared")
		return nil
	case "summary":
		return a.summary(ctx)
	case "coupon":
		return a.coupon(ctx, args)
	case "wishlist":
		list, err := a.engine.Wishlist.GetWishlist(ctx)
		return printWishlist(list, err)
	case "fav":
		return a.withProduct(args, func(id string) error {
			return printWishlist(a.engine.Wishlist.AddItem(ctx, id))
		})
	case "unfav":
		return a.withProduct(args, func(id string) error {
			return printWishlist(a.engine.Wishlist.RemoveItem(ctx, id))
		})
	case "login":
		return a.login(ctx, args)
	case "logout":
		if err := a.engine.Auth.Logout(ctx); err != nil {
			return err
		}
		_ = a.store.Delete(ctx, tokenKey)
		fmt.Println("signed out")
		return nil
	case "watch":
		return a.watch(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("login needs an id token")
	}
	user, err := a.engine.Auth.Login(ctx, args[0])
	if err != nil {
		return err
	}
	if err := a.store.Put(ctx, tokenKey, []byte(args[0])); err != nil {
		a.logger.Warn("could not save login", "error", err)
	}
	fmt.Printf("signed in as %s\n", displayName(user))
	return a.showCart(ctx)
}

func displayName(u *auth.User) string {
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return
	}

	fmt.Fprintln(os.Stderr, "error:", describe(err))
	os.Exit(1)
}

// describe prefers the shopper-facing message for engine errors.
func describe(err error) string {
	var (
		de *domain.Error
		ve *domain.ValidationError
		pe *domain.PartialClearError
	)
	if errors.As(err, &de) || errors.As(err, &ve) || errors.As(err, &pe) {
		return fmt.Sprintf("%s (%s)", domain.ErrorMessage(err), domain.ErrorCode(err))
	}
	return err.Error()
}
