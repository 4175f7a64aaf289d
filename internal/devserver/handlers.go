package devserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dukerupert/cartsync/internal/backend"
)

func (s *Server) routes() {
	e := s.echo

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(s.metrics.handler()))
	e.GET("/products/:id", s.getProduct)

	cart := e.Group("/cart", s.requireUser)
	cart.GET("", s.getAuthCart)
	cart.POST("/items", s.addAuthItem)
	cart.PUT("/items/:id", s.updateAuthItem)
	cart.DELETE("/items/:id", s.removeAuthItem)
	cart.POST("/items/:id/increment", s.stepAuthItem(1))
	cart.POST("/items/:id/decrement", s.stepAuthItem(-1))
	cart.GET("/summary", s.getSummary)
	cart.GET("/count", s.getCount)
	cart.GET("/validate", s.validateAuthCart)
	cart.POST("/apply-coupon", s.applyCoupon)
	cart.DELETE("/remove-coupon", s.removeCoupon)
	cart.POST("/migrate", s.migrate)

	fav := e.Group("/favorites", s.requireUser)
	fav.GET("", s.listFavorites)
	fav.POST("", s.addFavorite)
	fav.DELETE("/:id", s.removeFavorite)
	fav.GET("/:id/check", s.checkFavorite)

	guest := e.Group("/guest/cart", s.requireSession)
	guest.GET("", s.getGuestCart)
	guest.POST("/items", s.addGuestItem)
	guest.PUT("/items/:id", s.updateGuestItem)
	guest.DELETE("/items/:id", s.removeGuestItem)
	guest.POST("/items/:id/increment", s.stepGuestItem(1))
	guest.POST("/items/:id/decrement", s.stepGuestItem(-1))
	guest.GET("/validate", s.validateGuestCart)
}

// bind decodes and validates a request body.
func bind[T any](c echo.Context) (*T, error) {
	req := new(T)
	if err := c.Bind(req); err != nil {
		return nil, err
	}
	if err := c.Validate(req); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Server) getProduct(c echo.Context) error {
	p, err := s.store.Product(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// Authenticated cart

func (s *Server) getAuthCart(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.AuthCart(userID(c)))
}

func (s *Server) addAuthItem(c echo.Context) error {
	req, err := bind[backend.AddItemRequest](c)
	if err != nil {
		return err
	}
	if err := s.store.AddItem(userID(c), "", req.ProductID, req.Quantity); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, s.store.AuthCart(userID(c)))
}

func (s *Server) updateAuthItem(c echo.Context) error {
	req, err := bind[backend.UpdateQuantityRequest](c)
	if err != nil {
		return err
	}
	if err := s.store.SetQuantity(userID(c), "", c.Param("id"), req.Quantity); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.store.AuthCart(userID(c)))
}

func (s *Server) removeAuthItem(c echo.Context) error {
	if err := s.store.RemoveItem(userID(c), "", c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) stepAuthItem(delta int) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := s.store.Step(userID(c), "", c.Param("id"), delta); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, s.store.AuthCart(userID(c)))
	}
}

func (s *Server) getSummary(c echo.Context) error {
	cart := s.store.AuthCart(userID(c))
	return c.JSON(http.StatusOK, backend.CartSummary{
		TotalItems:      cart.TotalItems,
		ItemCount:       len(cart.Items),
		TotalPrice:      cart.TotalPrice,
		DiscountAmount:  cart.DiscountAmount,
		DiscountedTotal: cart.DiscountedTotal,
		CouponCode:      cart.CouponCode,
	})
}

func (s *Server) getCount(c echo.Context) error {
	return c.JSON(http.StatusOK, backend.CartCount{Count: s.store.AuthCart(userID(c)).TotalItems})
}

func (s *Server) validateAuthCart(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.Validate(userID(c), ""))
}

func (s *Server) applyCoupon(c echo.Context) error {
	req, err := bind[backend.CouponRequest](c)
	if err != nil {
		return err
	}
	if err := s.store.ApplyCoupon(userID(c), req.CouponCode); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.store.AuthCart(userID(c)))
}

func (s *Server) removeCoupon(c echo.Context) error {
	s.store.RemoveCoupon(userID(c))
	return c.JSON(http.StatusOK, s.store.AuthCart(userID(c)))
}

// migrate merges the guest cart named by the session header into the
// caller's cart.
func (s *Server) migrate(c echo.Context) error {
	if sid := c.Request().Header.Get(backend.SessionHeader); sid != "" {
		s.store.Migrate(userID(c), sid)
	}
	return c.JSON(http.StatusOK, s.store.AuthCart(userID(c)))
}

// Favorites

func (s *Server) listFavorites(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.Favorites(userID(c)))
}

func (s *Server) addFavorite(c echo.Context) error {
	req, err := bind[backend.FavoriteRequest](c)
	if err != nil {
		return err
	}
	if err := s.store.AddFavorite(userID(c), req.ProductID); err != nil {
		return err
	}
	return c.NoContent(http.StatusCreated)
}

func (s *Server) removeFavorite(c echo.Context) error {
	if err := s.store.RemoveFavorite(userID(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) checkFavorite(c echo.Context) error {
	return c.JSON(http.StatusOK, backend.FavoriteCheck{IsFavorite: s.store.IsFavorite(userID(c), c.Param("id"))})
}

// Guest cart

func (s *Server) getGuestCart(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.GuestCart(sessionID(c)))
}

func (s *Server) addGuestItem(c echo.Context) error {
	req, err := bind[backend.AddItemRequest](c)
	if err != nil {
		return err
	}
	if err := s.store.AddItem("", sessionID(c), req.ProductID, req.Quantity); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.store.GuestCart(sessionID(c)))
}

func (s *Server) updateGuestItem(c echo.Context) error {
	req, err := bind[backend.UpdateQuantityRequest](c)
	if err != nil {
		return err
	}
	if err := s.store.SetQuantity("", sessionID(c), c.Param("id"), req.Quantity); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.store.GuestCart(sessionID(c)))
}

func (s *Server) removeGuestItem(c echo.Context) error {
	if err := s.store.RemoveItem("", sessionID(c), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.store.GuestCart(sessionID(c)))
}

func (s *Server) stepGuestItem(delta int) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := s.store.Step("", sessionID(c), c.Param("id"), delta); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, s.store.GuestCart(sessionID(c)))
	}
}

func (s *Server) validateGuestCart(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.Validate("", sessionID(c)))
}
