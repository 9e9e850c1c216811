// Package paywall implements the HTTP 402 Payment Required middleware
// for the x402 protocol: it issues payment challenges, decodes
// proof-of-payment headers, and hands paid requests to the settlement
// orchestrator.
package paywall

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/paygate/internal/metrics"
	"github.com/mbd888/paygate/internal/providers"
	"github.com/mbd888/paygate/internal/settlement"
	"github.com/mbd888/paygate/internal/usdc"
	"github.com/mbd888/paygate/internal/x402"
)

const settlementKey = "paygate_settlement"

// Route describes one paid resource.
type Route struct {
	Kind        string // provider kind serving this resource
	Price       string // USDC per call, decimal string (e.g. "0.01")
	Description string
	MimeType    string
	TimeoutSec  int // downstream budget; 0 uses the provider's own
}

// Config wires the middleware to the settlement engine.
type Config struct {
	Orchestrator *settlement.Orchestrator
	Providers    *providers.Registry
	Network      string
	Asset        string // asset contract address
	PayTo        string // facilitator receiving account
	Strategy     string // provider ranking strategy
}

// Middleware returns a gin handler that gates the route behind an x402
// payment. Unpaid requests receive a 402 challenge; paid requests are
// settled and answered with the downstream body plus a settlement
// response header.
func Middleware(cfg Config, route Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		requirement := cfg.requirement(route, c.Request.URL.Path)

		header := c.GetHeader(x402.PaymentHeader)
		if header == "" {
			challenge(c, requirement)
			return
		}

		candidates, err := cfg.Providers.Resolve(route.Kind, "", cfg.Strategy)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "no_provider",
				"message": "no provider is available for this resource",
			})
			return
		}

		var body map[string]interface{}
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&body); err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error":   "invalid_body",
					"message": "request body must be JSON",
				})
				return
			}
		}

		outcome := cfg.Orchestrator.Process(c.Request.Context(), settlement.Request{
			PaymentHeader: header,
			Requirement:   requirement,
			Provider:      candidates[0].Provider,
			Body:          body,
		})

		encoded, err := x402.EncodeSettleResult(&outcome.Result)
		if err == nil {
			c.Header(x402.PaymentResponseHeader, encoded)
		}

		if !outcome.Result.Paid {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":   string(outcome.Result.Reason),
				"message": outcome.Result.Message,
				"accepts": []x402.PaymentRequirement{requirement},
			})
			return
		}

		c.Set(settlementKey, outcome)
		c.JSON(http.StatusOK, outcome.Response)
		c.Abort()
	}
}

// requirement builds the PaymentRequirement advertised for a route.
func (cfg Config) requirement(route Route, path string) x402.PaymentRequirement {
	amount := "0"
	if parsed, ok := usdc.Parse(route.Price); ok {
		amount = parsed.String()
	}
	timeout := route.TimeoutSec
	if timeout <= 0 {
		timeout = int(providers.DefaultTimeout / time.Second)
	}
	mime := route.MimeType
	if mime == "" {
		mime = "application/json"
	}
	return x402.PaymentRequirement{
		Scheme:            x402.SchemeExact,
		Network:           cfg.Network,
		MaxAmountRequired: amount,
		Resource:          path,
		Description:       route.Description,
		MimeType:          mime,
		PayTo:             cfg.PayTo,
		MaxTimeoutSeconds: int64(timeout),
		Asset:             cfg.Asset,
	}
}

// challenge answers an unpaid request with the 402 requirement list.
func challenge(c *gin.Context, requirement x402.PaymentRequirement) {
	metrics.ChallengesTotal.WithLabelValues(requirement.Resource).Inc()
	c.AbortWithStatusJSON(http.StatusPaymentRequired, x402.PaymentRequired{
		X402Version: x402.Version,
		Accepts:     []x402.PaymentRequirement{requirement},
		Error:       "payment required",
	})
}

// GetSettlement retrieves the settlement outcome stored by the
// middleware, for handlers and access logs downstream of it.
func GetSettlement(c *gin.Context) *settlement.Outcome {
	if v, exists := c.Get(settlementKey); exists {
		return v.(*settlement.Outcome)
	}
	return nil
}
