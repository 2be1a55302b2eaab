package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aloewind/exportremix-sub001/app/models"
	"github.com/aloewind/exportremix-sub001/app/store"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"
)

// CreateCheckoutSession starts a Stripe Checkout Session for the requested tier.
func (s *Server) CreateCheckoutSession(c *gin.Context) {
	acct, ok := accountFrom(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	log := s.requestLog(c)

	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.Tier == "" {
		req.Tier = models.TierPro
	}
	if req.Tier == models.TierFree {
		c.JSON(http.StatusBadRequest, gin.H{"error": "free tier needs no checkout"})
		return
	}
	if _, known := s.catalog.Get(req.Tier); !known {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown tier"})
		return
	}

	priceID := s.cfg.Stripe.PriceIDs[string(req.Tier)]
	frontendURL := strings.TrimRight(s.cfg.Stripe.FrontendURL, "/")
	if priceID == "" || frontendURL == "" {
		log.Error("missing Stripe config",
			zap.Bool("price_id", priceID != ""),
			zap.Bool("frontend_url", frontendURL != ""))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	customerID, err := s.ensureStripeCustomer(c.Request.Context(), acct)
	if err != nil {
		log.Error("ensureStripeCustomer failed", zap.String("user", acct.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare billing"})
		return
	}

	url, err := s.payments.CheckoutURL(c.Request.Context(), CheckoutParams{
		UserID:     acct.ID,
		CustomerID: customerID,
		Tier:       req.Tier,
		PriceID:    priceID,
		SuccessURL: frontendURL + "/billing/success",
		CancelURL:  frontendURL + "/billing/cancel",
	})
	if err != nil {
		log.Error("stripe checkout session failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create checkout session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

// CreatePortalSession creates a Stripe Customer Portal session for the authenticated user.
func (s *Server) CreatePortalSession(c *gin.Context) {
	acct, ok := accountFrom(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	log := s.requestLog(c)

	customerID, err := s.billing.StripeCustomerID(c.Request.Context(), acct.ID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stripe customer missing for user"})
		return
	}
	if err != nil {
		log.Error("portal lookup failed", zap.String("user", acct.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load customer"})
		return
	}

	frontendURL := strings.TrimRight(s.cfg.Stripe.FrontendURL, "/")
	if frontendURL == "" {
		log.Error("missing Stripe config", zap.Bool("frontend_url", false))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	url, err := s.payments.PortalURL(c.Request.Context(), customerID, frontendURL+"/settings/billing")
	if err != nil {
		log.Error("stripe portal session failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create portal session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

// StripeWebhook keeps subscription rows in step with Stripe.
func (s *Server) StripeWebhook(c *gin.Context) {
	const maxBodyBytes = int64(65536)
	log := s.requestLog(c)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		log.Warn("stripe webhook read failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	endpointSecret := s.cfg.Stripe.WebhookSecret
	if endpointSecret == "" {
		log.Error("stripe webhook secret missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		c.GetHeader("Stripe-Signature"),
		endpointSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		log.Warn("stripe webhook signature failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	ctx := c.Request.Context()
	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			log.Warn("stripe session unmarshal failed", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session payload"})
			return
		}
		if sess.Customer == nil || sess.Customer.ID == "" || sess.ClientReferenceID == "" {
			log.Warn("stripe session missing customer or user", zap.String("event", event.ID))
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing customer id"})
			return
		}
		if err := s.billing.SaveStripeCustomer(ctx, sess.ClientReferenceID, sess.Customer.ID); err != nil {
			log.Error("save stripe customer failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
			return
		}
		tier := models.TierID(sess.Metadata["tier"])
		if _, known := s.catalog.Get(tier); known && tier != models.TierFree {
			sub := models.Subscription{
				UserID:           sess.ClientReferenceID,
				Tier:             tier,
				Status:           models.StatusActive,
				StripeCustomerID: sess.Customer.ID,
			}
			if sess.Subscription != nil {
				sub.StripeSubscriptionID = sess.Subscription.ID
			}
			if err := s.billing.UpsertSubscription(ctx, sub); err != nil {
				log.Error("stripe plan upgrade failed", zap.String("customer", sess.Customer.ID), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
				return
			}
		}

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			log.Warn("stripe subscription unmarshal failed", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription payload"})
			return
		}
		if sub.Customer == nil || sub.Customer.ID == "" {
			log.Warn("stripe subscription missing customer id", zap.String("event", event.ID))
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing customer id"})
			return
		}

		deleted := event.Type == "customer.subscription.deleted"
		record, ok := s.subscriptionFromStripe(c, &sub, deleted)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		if deleted {
			record.Status = models.StatusCanceled
		}
		if err := s.billing.UpsertSubscription(ctx, record); err != nil {
			log.Error("stripe subscription sync failed", zap.String("customer", sub.Customer.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
			return
		}
	default:
		// Intentionally ignore unhandled events.
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// subscriptionFromStripe resolves the user and tier behind a Stripe subscription.
// A deletion is never dropped for an unknown price: the stored tier is kept so
// the row can still be canceled.
func (s *Server) subscriptionFromStripe(c *gin.Context, sub *stripe.Subscription, deleted bool) (models.Subscription, bool) {
	log := s.requestLog(c)

	userID := sub.Metadata["user_id"]
	if userID == "" {
		found, err := s.billing.UserForStripeCustomer(c.Request.Context(), sub.Customer.ID)
		if err != nil {
			log.Warn("no user for stripe customer", zap.String("customer", sub.Customer.ID), zap.Error(err))
			return models.Subscription{}, false
		}
		userID = found
	}

	var tier models.TierID
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.Price == nil {
				continue
			}
			if t, ok := s.tierForPrice(item.Price.ID); ok {
				tier = t
				break
			}
		}
	}
	if tier == "" {
		tier = models.TierID(sub.Metadata["tier"])
	}
	if _, known := s.catalog.Get(tier); !known {
		if !deleted {
			log.Warn("stripe subscription with unknown price", zap.String("subscription", sub.ID))
			return models.Subscription{}, false
		}
		tier = models.TierFree
		if stored, err := s.billing.ReadSubscriptionTier(c.Request.Context(), userID); err == nil {
			tier = stored
		}
	}

	return models.Subscription{
		UserID:               userID,
		Tier:                 tier,
		Status:               models.SubscriptionStatus(sub.Status),
		StripeCustomerID:     sub.Customer.ID,
		StripeSubscriptionID: sub.ID,
		CurrentPeriodStart:   unixTime(sub.CurrentPeriodStart),
		CurrentPeriodEnd:     unixTime(sub.CurrentPeriodEnd),
	}, true
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
