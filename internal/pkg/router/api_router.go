package router

import (
	"log"

	"github.com/billflowhq/billflow/app/controllers"
	"github.com/billflowhq/billflow/app/repository"
	"github.com/billflowhq/billflow/internal/pkg/billing"
	"github.com/billflowhq/billflow/internal/pkg/constants"
	"github.com/billflowhq/billflow/internal/pkg/database"
	"github.com/billflowhq/billflow/internal/pkg/middleware"
	"github.com/billflowhq/billflow/internal/pkg/session"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// init session store and repositories before any middleware needs them
	session.NewSessionStore()
	repository.InitializeGlobalFactory(database.GetDB())

	app.Use(middleware.UserContextMiddleware)

	svc := billing.NewServiceFromDB(database.GetDB())
	gateway, err := billing.NewClientFromEnv()
	if err != nil {
		// Gateway credentials are required; refusing to start beats silently
		// degrading to an unauthenticated client.
		log.Fatalf("razorpay client configuration: %v", err)
	}

	webhookCtl := controllers.NewWebhookController(svc)
	billingCtl := controllers.NewBillingController(svc, gateway)

	api := app.Group(constants.APIRoute, limiter.New())

	api.Post(constants.AuthRegisterRoute, controllers.HandleRegister)
	api.Post(constants.AuthLoginRoute, controllers.HandleLogin)
	api.Post(constants.AuthLogoutRoute, controllers.HandleLogout)

	api.Post(constants.RazorpayWebhookRoute, webhookCtl.HandleRazorpayWebhook)
	api.Post(constants.RazorpayCreateOrderRoute, billingCtl.HandleCreateOrder)
	api.Post(constants.RazorpayVerifyPaymentRoute, billingCtl.HandleVerifyPayment)
	api.Post(constants.RazorpayCreateSubscriptionRoute, middleware.RequireAPISessionAuth, billingCtl.HandleCreateSubscription)
	api.Post(constants.RazorpayCancelSubscriptionRoute, middleware.RequireAPISessionAuth, billingCtl.HandleCancelSubscription)

	api.Get(constants.UserSubscriptionRoute, middleware.RequireAPISessionAuth, billingCtl.HandleGetSubscription)
	api.Get(constants.BillingStatsRoute, middleware.RequireAPISessionAuth, controllers.HandleBillingStats)
}
