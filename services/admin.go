package services

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/classifieds/config"
	"github.com/cppla/classifieds/models"
	"github.com/cppla/classifieds/repository"
	"github.com/cppla/classifieds/utils"
)

//go:embed templates/daily_report.html
var templateFS embed.FS

var reportTemplate = template.Must(template.ParseFS(templateFS, "templates/daily_report.html"))

const maxVIPDays = 3650

type AdminService struct {
	users    UserStore
	listings ListingStore
	views    ViewCounter
	mail     Mailer
	cfg      config.AppConfig
	now      func() time.Time
}

func NewAdminService(users UserStore, listings ListingStore, views ViewCounter, mail Mailer, cfg config.AppConfig) *AdminService {
	return &AdminService{users: users, listings: listings, views: views, mail: mail, cfg: cfg, now: time.Now}
}

// DailyReport is the staff metrics snapshot.
type DailyReport struct {
	Date              string  `json:"date"`
	TotalUsers        int64   `json:"total_users"`
	TotalActivated    int64   `json:"total_activated"`
	TotalPosts        int64   `json:"total_posts"`
	TotalVIPs         int64   `json:"total_vips"`
	NewUsers          int64   `json:"new_users"`
	NewPosts          int64   `json:"new_posts"`
	NewVIPs           int64   `json:"new_vips"`
	UsersChange       string  `json:"users_change"`
	PostsChange       string  `json:"posts_change"`
	VIPsChange        string  `json:"vips_change"`
	PostsAveragePrice float64 `json:"posts_average_price"`
	ViewsToday        int64   `json:"views_today"`
}

// PercentageChange renders the day over day change of a count.
func PercentageChange(yesterday, today int64) string {
	switch {
	case yesterday == 0 && today == 0:
		return "0.0"
	case today == 0:
		return "-100.0"
	case yesterday == 0:
		return "Infinity"
	}
	pct := math.Round(float64(today-yesterday)/float64(yesterday)*100*100) / 100
	s := strconv.FormatFloat(pct, 'f', -1, 64)
	if pct == math.Trunc(pct) {
		s += ".0"
	}
	return s
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// counter counts rows created in [from, to).
type counter func(ctx context.Context, from, to time.Time) (int64, error)

func (s *AdminService) newUsers(ctx context.Context, from, to time.Time) (int64, error) {
	return s.users.Count(ctx, repository.UserFilter{JoinedFrom: &from, JoinedBefore: &to})
}

func (s *AdminService) newVIPs(ctx context.Context, from, to time.Time) (int64, error) {
	vip := true
	return s.users.Count(ctx, repository.UserFilter{IsVIP: &vip, VIPGrantedFrom: &from, VIPGrantedTo: &to})
}

func (s *AdminService) newPosts(ctx context.Context, from, to time.Time) (int64, error) {
	last := to.Add(-time.Nanosecond)
	return s.listings.Count(ctx, repository.ListingFilter{CreatedFrom: &from, CreatedTo: &last})
}

// Collect computes the report without side effects.
func (s *AdminService) Collect(ctx context.Context) (DailyReport, error) {
	now := s.now()
	today := dayStart(now)
	tomorrow := today.AddDate(0, 0, 1)
	yesterday := today.AddDate(0, 0, -1)
	rep := DailyReport{Date: today.Format("2006-01-02")}

	var err error
	activated, vip := true, true
	if rep.TotalUsers, err = s.users.Count(ctx, repository.UserFilter{}); err != nil {
		return DailyReport{}, internal(err)
	}
	if rep.TotalActivated, err = s.users.Count(ctx, repository.UserFilter{IsActivated: &activated}); err != nil {
		return DailyReport{}, internal(err)
	}
	if rep.TotalVIPs, err = s.users.Count(ctx, repository.UserFilter{IsVIP: &vip}); err != nil {
		return DailyReport{}, internal(err)
	}
	if rep.TotalPosts, err = s.listings.Count(ctx, repository.ListingFilter{}); err != nil {
		return DailyReport{}, internal(err)
	}

	for _, m := range []struct {
		count  counter
		today  *int64
		change *string
	}{
		{s.newUsers, &rep.NewUsers, &rep.UsersChange},
		{s.newPosts, &rep.NewPosts, &rep.PostsChange},
		{s.newVIPs, &rep.NewVIPs, &rep.VIPsChange},
	} {
		t, err := m.count(ctx, today, tomorrow)
		if err != nil {
			return DailyReport{}, internal(err)
		}
		y, err := m.count(ctx, yesterday, today)
		if err != nil {
			return DailyReport{}, internal(err)
		}
		*m.today = t
		*m.change = PercentageChange(y, t)
	}

	avg, err := s.listings.AveragePrice(ctx)
	if err != nil {
		return DailyReport{}, internal(err)
	}
	rep.PostsAveragePrice = math.Round(avg*100) / 100
	if rep.ViewsToday, err = s.views.Total(ctx, now, ListingPath("")); err != nil {
		return DailyReport{}, internal(err)
	}
	return rep, nil
}

// Render produces the HTML version of the report.
func Render(rep DailyReport) ([]byte, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, rep); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DailyReport collects the metrics, writes reports/report_YYYY-MM-DD.html and
// mails it to the configured admins and all staff.
func (s *AdminService) DailyReport(ctx context.Context) (DailyReport, error) {
	rep, err := s.Collect(ctx)
	if err != nil {
		return DailyReport{}, err
	}
	html, err := Render(rep)
	if err != nil {
		return DailyReport{}, internal(err)
	}

	dir := s.cfg.ReportsDir
	if dir == "" {
		dir = "reports"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return DailyReport{}, internal(err)
	}
	path := filepath.Join(dir, fmt.Sprintf("report_%s.html", rep.Date))
	if err := os.WriteFile(path, html, 0o644); err != nil {
		return DailyReport{}, internal(err)
	}
	utils.Logger.Info("daily report written", zap.String("path", path))

	recipients, err := s.recipients(ctx)
	if err != nil {
		return DailyReport{}, internal(err)
	}
	if len(recipients) > 0 {
		err := s.mail.Dispatch(ctx, utils.Mail{
			To:      recipients,
			Subject: "Daily report " + rep.Date,
			Body:    string(html),
			HTML:    true,
		})
		if err != nil {
			utils.Logger.Warn("daily report mail failed", zap.Error(err))
		}
	}
	return rep, nil
}

func (s *AdminService) recipients(ctx context.Context) ([]string, error) {
	staff, err := s.users.StaffEmails(ctx)
	if err != nil {
		return nil, err
	}
	all := append(append([]string{}, s.cfg.AdminEmails...), staff...)
	return utils.Unique(nonEmpty(all)), nil
}

// GrantVIP makes a user VIP for the given number of days.
func (s *AdminService) GrantVIP(ctx context.Context, userID string, days int) (models.User, error) {
	if days <= 0 || days > maxVIPDays {
		return models.User{}, ErrVIPDays
	}
	now := s.now()
	expires := now.AddDate(0, 0, days)
	return s.setVIP(ctx, userID, true, &now, &expires)
}

// RevokeVIP drops VIP immediately.
func (s *AdminService) RevokeVIP(ctx context.Context, userID string) (models.User, error) {
	return s.setVIP(ctx, userID, false, nil, nil)
}

func (s *AdminService) setVIP(ctx context.Context, userID string, vip bool, grantedAt, expiresAt *time.Time) (models.User, error) {
	u, err := s.users.SetVIP(ctx, userID, vip, grantedAt, expiresAt)
	if errors.Is(err, repository.ErrNotFound) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, internal(err)
	}
	utils.CacheDelete(utils.CacheUserPrefix + u.Username)
	// Cached listing details embed the owner's VIP badge.
	utils.InvalidateByPrefix(utils.CacheListingPrefix)
	return u, nil
}

// Stats is the public aggregate view.
type Stats struct {
	UserCount    int64 `json:"user_count"`
	ListingCount int64 `json:"listing_count"`
	VIPCount     int64 `json:"vip_count"`
	ViewsToday   int64 `json:"views_today"`
}

// Stats degrades each count to zero instead of failing the endpoint.
func (s *AdminService) Stats(ctx context.Context) Stats {
	var st Stats
	vip := true
	if n, err := s.users.Count(ctx, repository.UserFilter{}); err == nil {
		st.UserCount = n
	}
	if n, err := s.listings.Count(ctx, repository.ListingFilter{}); err == nil {
		st.ListingCount = n
	}
	if n, err := s.users.Count(ctx, repository.UserFilter{IsVIP: &vip}); err == nil {
		st.VIPCount = n
	}
	if n, err := s.views.Total(ctx, s.now(), ListingPath("")); err == nil {
		st.ViewsToday = n
	}
	return st
}
