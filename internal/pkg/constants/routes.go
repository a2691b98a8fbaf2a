package constants

// Static route constants
const (
	APIRoute = "/api"

	AuthRegisterRoute = "/auth/register"
	AuthLoginRoute    = "/auth/login"
	AuthLogoutRoute   = "/auth/logout"

	RazorpayWebhookRoute            = "/razorpay/webhook"
	RazorpayCreateOrderRoute        = "/razorpay/create-order"
	RazorpayVerifyPaymentRoute      = "/razorpay/verify-payment"
	RazorpayCreateSubscriptionRoute = "/razorpay/create-subscription"
	RazorpayCancelSubscriptionRoute = "/razorpay/cancel-subscription"

	UserSubscriptionRoute = "/user/subscription"
	BillingStatsRoute     = "/billing/stats"
)
