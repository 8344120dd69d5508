// internal/controller/email_controller.go
package controller

import (
    "encoding/json"
    "errors"
    "io"
    "net/http"
    "time"

    appErrors "github.com/mailburst/mailburst-backend/internal/errors"
    "github.com/mailburst/mailburst-backend/internal/repository"
    "github.com/mailburst/mailburst-backend/internal/service"
    "github.com/mailburst/mailburst-backend/internal/util"
)

// Defaults applied when the request omits pacing/limit fields
const (
    defaultDelayBetweenEmailsMs = 2000
    defaultHourlyLimit          = 200
)

type EmailController struct {
    EmailService *service.EmailService
    UserRepo     repository.UserRepositoryInterface
}

// userID pulls the acting user from the request. Session mechanics live
// outside this service; the gateway injects the authenticated user id.
func userID(r *http.Request) string {
    return r.Header.Get("X-User-ID")
}

// resolveUser checks the header-supplied id against the users table so an
// unknown caller is rejected up front instead of surfacing as a foreign key
// violation on the first insert
func (c *EmailController) resolveUser(w http.ResponseWriter, r *http.Request) (string, bool) {
    id := userID(r)
    if id == "" {
        http.Error(w, "X-User-ID header is required", http.StatusBadRequest)
        return "", false
    }
    user, err := c.UserRepo.GetByID(id)
    if err != nil {
        http.Error(w, err.Error(), http.StatusInternalServerError)
        return "", false
    }
    if user == nil {
        http.Error(w, "user not found", http.StatusNotFound)
        return "", false
    }
    return user.ID, true
}

func (c *EmailController) ScheduleEmails(w http.ResponseWriter, r *http.Request) {
    uid, ok := c.resolveUser(w, r)
    if !ok {
        return
    }

    var body struct {
        Subject            string   `json:"subject"`
        Body               string   `json:"body"`
        Recipients         []string `json:"recipients"`
        StartTime          string   `json:"startTime"`
        DelayBetweenEmails *int     `json:"delayBetweenEmails"`
        HourlyLimit        *int     `json:"hourlyLimit"`
    }
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
        http.Error(w, "invalid body", http.StatusBadRequest)
        return
    }

    startTime, err := time.Parse(time.RFC3339, body.StartTime)
    if err != nil {
        http.Error(w, "startTime must be an RFC3339 instant", http.StatusBadRequest)
        return
    }

    delayMs := defaultDelayBetweenEmailsMs
    if body.DelayBetweenEmails != nil {
        delayMs = *body.DelayBetweenEmails
    }
    hourlyLimit := defaultHourlyLimit
    if body.HourlyLimit != nil {
        hourlyLimit = *body.HourlyLimit
    }

    result, err := c.EmailService.ScheduleEmails(r.Context(), uid, service.ScheduleEmailsRequest{
        Subject:            body.Subject,
        Body:               body.Body,
        Recipients:         body.Recipients,
        StartTime:          startTime,
        DelayBetweenEmails: time.Duration(delayMs) * time.Millisecond,
        HourlyLimit:        hourlyLimit,
    })
    if err != nil {
        var verr *appErrors.ValidationError
        if errors.As(err, &verr) {
            http.Error(w, verr.Error(), http.StatusBadRequest)
            return
        }
        http.Error(w, err.Error(), http.StatusInternalServerError)
        return
    }

    w.WriteHeader(http.StatusCreated)
    json.NewEncoder(w).Encode(map[string]interface{}{
        "message":         "Emails scheduled successfully",
        "batchId":         result.BatchID,
        "totalEmails":     result.TotalEmails,
        "hourlyLimit":     result.HourlyLimit,
        "scheduledEmails": result.ScheduledEmails,
        "failures":        result.Failures,
    })
}

func (c *EmailController) GetScheduledEmails(w http.ResponseWriter, r *http.Request) {
    emails, err := c.EmailService.GetScheduledEmails(userID(r))
    if err != nil {
        http.Error(w, err.Error(), http.StatusInternalServerError)
        return
    }
    json.NewEncoder(w).Encode(map[string]interface{}{"emails": emails})
}

func (c *EmailController) GetSentEmails(w http.ResponseWriter, r *http.Request) {
    emails, err := c.EmailService.GetSentEmails(userID(r))
    if err != nil {
        http.Error(w, err.Error(), http.StatusInternalServerError)
        return
    }
    json.NewEncoder(w).Encode(map[string]interface{}{"emails": emails})
}

func (c *EmailController) GetStats(w http.ResponseWriter, r *http.Request) {
    stats, err := c.EmailService.GetStats(userID(r))
    if err != nil {
        http.Error(w, err.Error(), http.StatusInternalServerError)
        return
    }
    json.NewEncoder(w).Encode(map[string]interface{}{"stats": stats})
}

// ParseCSV extracts recipient addresses from an uploaded CSV or text file so
// the client can feed them back into a schedule request
func (c *EmailController) ParseCSV(w http.ResponseWriter, r *http.Request) {
    file, _, err := r.FormFile("file")
    if err != nil {
        http.Error(w, "file field is required", http.StatusBadRequest)
        return
    }
    defer file.Close()

    content, err := io.ReadAll(file)
    if err != nil {
        http.Error(w, "failed to read file", http.StatusInternalServerError)
        return
    }

    emails := util.ParseEmails(string(content))
    json.NewEncoder(w).Encode(map[string]interface{}{
        "emails": emails,
        "count":  len(emails),
    })
}
