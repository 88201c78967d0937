package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cppla/classifieds/config"
	"github.com/cppla/classifieds/models"
	"github.com/cppla/classifieds/repository"
	"github.com/cppla/classifieds/utils"
)

// Comment policies for bug reports.
const (
	CommentPolicyStaff        = "staff"
	CommentPolicyParticipants = "participants"
)

type ReportService struct {
	reports ReportStore
	users   UserStore
	cfg     config.AppConfig
	now     func() time.Time
}

func NewReportService(reports ReportStore, users UserStore, cfg config.AppConfig) *ReportService {
	return &ReportService{reports: reports, users: users, cfg: cfg, now: time.Now}
}

type ReportInput struct {
	Title string `json:"title" binding:"required"`
	Body  string `json:"body" binding:"required"`
}

type ReportView struct {
	models.BugReport
	User *models.PublicUser `json:"user"`
}

type CommentView struct {
	models.BugReportComment
	User *models.PublicUser `json:"user"`
}

type ReportPage struct {
	Items  []ReportView `json:"items"`
	Total  int64        `json:"total"`
	Offset int          `json:"offset"`
	Limit  int          `json:"limit"`
}

type CommentPage struct {
	Items  []CommentView `json:"items"`
	Total  int64         `json:"total"`
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
}

// FormatReportBody stamps the reporter and time onto the problem text.
func FormatReportBody(username string, at time.Time, body string) string {
	return fmt.Sprintf("from: %s at: %s problem:%s ", username, at.Format("02.01.2006 15:04:05"), body)
}

// Create files a report. The VIP flag is copied from the reporter.
func (s *ReportService) Create(ctx context.Context, u models.User, in ReportInput) (ReportView, error) {
	title := utils.SanitizeText(strings.TrimSpace(in.Title))
	if n := utf8.RuneCountInString(title); n == 0 || n > maxTitleLen {
		return ReportView{}, ErrReportTitle
	}
	body := utils.SanitizeText(strings.TrimSpace(in.Body))
	if body == "" {
		return ReportView{}, ErrReportBody
	}
	rep, err := s.reports.Create(ctx, models.BugReport{
		UserID: u.ID,
		Title:  title,
		Body:   FormatReportBody(u.Username, s.now(), body),
		IsVIP:  u.IsVIP,
	})
	if err != nil {
		return ReportView{}, internal(err)
	}
	pub := u.Public()
	return ReportView{BugReport: rep, User: &pub}, nil
}

func clampPage(offset, limit, def, ceiling int) (repository.Page, error) {
	if limit == 0 {
		limit = def
	}
	if offset < 0 || limit < 0 {
		return repository.Page{}, ErrBadPage
	}
	if limit > ceiling {
		limit = ceiling
	}
	return repository.Page{Offset: offset, Limit: limit}, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// ListOpen returns open reports, VIP first then newest.
func (s *ReportService) ListOpen(ctx context.Context, offset, limit int) (ReportPage, error) {
	def := orDefault(s.cfg.ReportsPageSize, 20)
	p, err := clampPage(offset, limit, def, 100)
	if err != nil {
		return ReportPage{}, err
	}
	open := false
	rows, total, err := s.reports.List(ctx, repository.ReportFilter{IsClosed: &open}, p)
	if err != nil {
		return ReportPage{}, internal(err)
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.UserID)
	}
	users, err := s.users.ByIDs(ctx, utils.Unique(ids))
	if err != nil {
		return ReportPage{}, internal(err)
	}
	items := make([]ReportView, 0, len(rows))
	for _, r := range rows {
		items = append(items, ReportView{BugReport: r, User: publicOf(users, r.UserID)})
	}
	return ReportPage{Items: items, Total: total, Offset: p.Offset, Limit: p.Limit}, nil
}

func publicOf(users map[string]models.User, id string) *models.PublicUser {
	u, ok := users[id]
	if !ok {
		return nil
	}
	pub := u.Public()
	return &pub
}

// access loads a report visible to staff and to its reporter.
func (s *ReportService) access(ctx context.Context, actor models.User, id uint) (models.BugReport, error) {
	rep, err := s.reports.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return models.BugReport{}, ErrReportNotFound
	}
	if err != nil {
		return models.BugReport{}, internal(err)
	}
	if !actor.IsStaff && actor.ID != rep.UserID {
		return models.BugReport{}, ErrReportForbidden
	}
	return rep, nil
}

func (s *ReportService) Get(ctx context.Context, actor models.User, id uint) (ReportView, error) {
	rep, err := s.access(ctx, actor, id)
	if err != nil {
		return ReportView{}, err
	}
	users, err := s.users.ByIDs(ctx, []string{rep.UserID})
	if err != nil {
		return ReportView{}, internal(err)
	}
	return ReportView{BugReport: rep, User: publicOf(users, rep.UserID)}, nil
}

// Close marks a report closed by staff. Closing twice is a conflict.
func (s *ReportService) Close(ctx context.Context, staff models.User, id uint) (models.BugReport, error) {
	rep, err := s.reports.Close(ctx, id, staff.ID, s.now())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return models.BugReport{}, ErrReportNotFound
	case errors.Is(err, repository.ErrAlreadyClosed):
		return models.BugReport{}, ErrReportClosed
	case err != nil:
		return models.BugReport{}, internal(err)
	}
	return rep, nil
}

// CanComment applies the configured comment policy.
func (s *ReportService) CanComment(actor models.User, rep models.BugReport) bool {
	if actor.IsStaff {
		return true
	}
	return s.cfg.ReportCommentPolicy == CommentPolicyParticipants && actor.ID == rep.UserID
}

func (s *ReportService) AddComment(ctx context.Context, actor models.User, id uint, body string) (CommentView, error) {
	rep, err := s.reports.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return CommentView{}, ErrReportNotFound
	}
	if err != nil {
		return CommentView{}, internal(err)
	}
	if !s.CanComment(actor, rep) {
		return CommentView{}, ErrCommentForbidden
	}
	body = utils.SanitizeText(strings.TrimSpace(body))
	if body == "" {
		return CommentView{}, ErrReportBody
	}
	c, err := s.reports.AddComment(ctx, models.BugReportComment{BugReportID: rep.ID, UserID: actor.ID, Body: body})
	if err != nil {
		return CommentView{}, internal(err)
	}
	pub := actor.Public()
	return CommentView{BugReportComment: c, User: &pub}, nil
}

// Comments lists a report's comments oldest first.
func (s *ReportService) Comments(ctx context.Context, actor models.User, id uint, offset, limit int) (CommentPage, error) {
	if _, err := s.access(ctx, actor, id); err != nil {
		return CommentPage{}, err
	}
	p, err := clampPage(offset, limit, orDefault(s.cfg.CommentsPageSize, 100), orDefault(s.cfg.CommentsMaxPageSize, 1000))
	if err != nil {
		return CommentPage{}, err
	}
	rows, total, err := s.reports.Comments(ctx, id, p)
	if err != nil {
		return CommentPage{}, internal(err)
	}
	ids := make([]string, 0, len(rows))
	for _, c := range rows {
		ids = append(ids, c.UserID)
	}
	users, err := s.users.ByIDs(ctx, utils.Unique(ids))
	if err != nil {
		return CommentPage{}, internal(err)
	}
	items := make([]CommentView, 0, len(rows))
	for _, c := range rows {
		items = append(items, CommentView{BugReportComment: c, User: publicOf(users, c.UserID)})
	}
	return CommentPage{Items: items, Total: total, Offset: p.Offset, Limit: p.Limit}, nil
}
