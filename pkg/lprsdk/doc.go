/*
Package lprsdk provides a client SDK for the LPR trust engine.

# Overview

Collaborators use the engine to issue Limited Permission Receipts for a
verified human session, to verify a receipt against the request it is
meant to authorise, and to revoke receipts. Every call is authenticated
with a static API token issued to the collaborator.

	client := lprsdk.NewClient("https://lpr.internal", os.Getenv("LPR_API_TOKEN"))

	issued, err := client.Issue(ctx, lprsdk.IssueRequest{
		SubjectID: userID,
		Device:    fingerprint,
		Scopes:    []lprsdk.Scope{{Method: "GET", URL: "/v1/messages/*"}},
		Origins:   []string{"https://app.example.com"},
	})

A connector executing a delegated request verifies the receipt first:

	res, err := client.Verify(ctx, lprsdk.VerifyRequest{
		Token:  issued.Token,
		Method: "GET",
		URL:    "https://api.example.com/v1/messages/42",
		Origin: "https://app.example.com",
	})

# Errors

Every non-2xx response is returned as an *APIError. Verification
rejections carry one of the Code* constants, so callers can branch on
the reason without parsing descriptions:

	var apiErr *lprsdk.APIError
	if errors.As(err, &apiErr) && apiErr.Code == lprsdk.CodeRevoked {
		// stop using this receipt
	}

# Operator endpoints

Key rotation, key listing and audit chain verification are exposed on
the same client for operator tooling.
*/
package lprsdk
