// Package client is the Go SDK for the incident reporting service.
//
//	c := client.MustNew("http://localhost:5000")
//	if _, err := c.Register(ctx, client.Registration{UserID: "kid@school.test", Password: "pw"}); err != nil {
//	    return err
//	}
//	if _, err := c.Login(ctx, "kid@school.test", "pw", ""); err != nil {
//	    return err
//	}
//	id, err := c.SubmitReport(ctx, client.ReportSubmission{
//	    StudentID:    "S-1",
//	    Description:  "pushed in the corridor",
//	    EvidenceName: "photo.png",
//	    Evidence:     f,
//	})
//
// Login stores the returned session token on the Client; later calls send it
// as a Bearer token.
package client
