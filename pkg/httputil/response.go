// Package httputil provides HTTP handler utilities for consistent response
// envelopes, error handling, JSON encoding/decoding, and request parsing.
//
// Every response body uses the same envelope:
//
//	{"status": "success", "message": "...", "data": {...}}
//	{"status": "error", "message": "..."}
//
// Plan-limit and billing failures additionally carry a machine-readable code.
package httputil

import (
	"encoding/json"
	"net/http"
)

// SuccessResponse is the envelope for all successful responses
type SuccessResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is the envelope for all error responses
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// QuotaErrorResponse is the body for plan-limit denials. Limit and Current
// let clients render "3 of 3 members used" without a second request.
type QuotaErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Limit   int    `json:"limit"`
	Current int    `json:"current"`
	PlanID  string `json:"plan_id"`
}

// BillingErrorResponse is the body for billing-status denials
type BillingErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Machine-readable error codes carried on quota and billing denials
const (
	CodePlanLimitTasks       = "PLAN_LIMIT_TASKS"
	CodePlanLimitMembers     = "PLAN_LIMIT_MEMBERS"
	CodePlanLimitWorkspaces  = "PLAN_LIMIT_WORKSPACES"
	CodeSubscriptionCanceled = "SUBSCRIPTION_CANCELED"
	CodePaymentPastDue       = "PAYMENT_PAST_DUE"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful response (200 OK) in the standard envelope
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, SuccessResponse{
		Status: "success",
		Data:   data,
	})
}

// WriteSuccessMessage writes a success response with a message
func WriteSuccessMessage(w http.ResponseWriter, message string, data interface{}) error {
	return WriteJSON(w, http.StatusOK, SuccessResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

// WriteCreated writes a successful creation response (201 Created)
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, SuccessResponse{
		Status: "success",
		Data:   data,
	})
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Status:  "error",
		Message: message,
	})
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteErrorMessage(w, status, err.Error())
}

// WriteValidationError writes a validation error response (400 Bad Request)
func WriteValidationError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, message)
}

// WriteNotFoundError writes a not found error response (404 Not Found)
func WriteNotFoundError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteConflict writes a conflict error (409)
func WriteConflict(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusConflict, message)
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusTooManyRequests, message)
}

// WriteInternalError writes an internal server error response (500)
func WriteInternalError(w http.ResponseWriter, err error) {
	WriteError(w, http.StatusInternalServerError, err)
}

// WriteServiceUnavailable writes a service unavailable error (503)
func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusServiceUnavailable, message)
}

// WriteQuotaExceeded writes a plan-limit denial (403) with the structured body
// clients use to drive upgrade prompts
func WriteQuotaExceeded(w http.ResponseWriter, code, message string, limit, current int, planID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	json.NewEncoder(w).Encode(QuotaErrorResponse{
		Status:  "error",
		Code:    code,
		Message: message,
		Limit:   limit,
		Current: current,
		PlanID:  planID,
	})
}

// WritePaymentRequired writes a billing-status denial (402)
func WritePaymentRequired(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	json.NewEncoder(w).Encode(BillingErrorResponse{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}
