// Package authapi contains stateless request builders for the backend auth endpoints.
//
// Each method is one request/response call through [httpclient.Client]: no retries,
// no caching, no session state. Package session maps the results into a Session.
//
// # Endpoints
//
//	POST /auth/login            {"email","password"}            -> TokenResponse
//	POST /auth/logout           bearer                          -> 204
//	POST /auth/refresh          {"refresh_token"}               -> TokenResponse
//	GET  /auth/me               bearer                          -> UserProfile
//	POST /auth/change-password  {"current_password","new_password"}
//	POST /auth/forgot-password  {"email"}                       -> 202
//	POST /auth/reset-password   {"token","new_password"}
package authapi
