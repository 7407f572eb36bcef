// Package httpapi is the reference HTTP transport for tokenauth.Engine.
//
// Routes:
//
//	POST /auth/login        {email, password} -> {accessToken, refreshToken, user}
//	POST /auth/refresh      {refreshToken} or X-Refresh-Token -> {accessToken}
//	POST /auth/logout       {refreshToken} -> 204
//	POST /auth/logout-all   authenticated -> 204
//	GET  /auth/sessions     authenticated -> [session]
//	GET  /auth/me           authenticated -> identity
//	GET  /auth/admin/ping   admin only -> {status}
//
// Errors are {"error": "<kind>"} with the status from tokenauth.HTTPStatus.
// Login failures for unknown emails and wrong passwords both answer
// 401 {"error": "unauthorized"}.
package httpapi
