package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cppla/classifieds/config"
	"github.com/cppla/classifieds/models"
	"github.com/cppla/classifieds/repository"
)

func newReportService(policy string) (*ReportService, *mockReports, *mockUsers) {
	reports, users := new(mockReports), new(mockUsers)
	svc := NewReportService(reports, users, config.AppConfig{ReportCommentPolicy: policy})
	svc.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) }
	return svc, reports, users
}

func TestFormatReportBody(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	assert.Equal(t, "from: alice at: 09.03.2024 14:05:07 problem:page is blank ", FormatReportBody("alice", at, "page is blank"))
}

func TestCreateReportCopiesVIP(t *testing.T) {
	svc, reports, _ := newReportService(CommentPolicyStaff)
	reporter := models.User{ID: "u1", Username: "alice", IsVIP: true}
	reports.On("Create", mock.MatchedBy(func(r models.BugReport) bool {
		return r.IsVIP && r.UserID == "u1" && r.Body == "from: alice at: 09.03.2024 14:05:07 problem:broken "
	})).Return(models.BugReport{ID: 3, UserID: "u1", IsVIP: true}, nil)

	view, err := svc.Create(context.Background(), reporter, ReportInput{Title: "Bug", Body: " broken "})
	require.NoError(t, err)
	assert.Equal(t, uint(3), view.ID)
	assert.Equal(t, "alice", view.User.Username)

	_, err = svc.Create(context.Background(), reporter, ReportInput{Title: " ", Body: "x"})
	assert.Equal(t, ErrReportTitle, err)
}

func TestCanCommentPolicies(t *testing.T) {
	rep := models.BugReport{ID: 1, UserID: "reporter"}
	staff := models.User{ID: "s", IsStaff: true}
	reporter := models.User{ID: "reporter"}
	stranger := models.User{ID: "x"}

	strict, _, _ := newReportService(CommentPolicyStaff)
	assert.True(t, strict.CanComment(staff, rep))
	assert.False(t, strict.CanComment(reporter, rep))
	assert.False(t, strict.CanComment(stranger, rep))

	open, _, _ := newReportService(CommentPolicyParticipants)
	assert.True(t, open.CanComment(staff, rep))
	assert.True(t, open.CanComment(reporter, rep))
	assert.False(t, open.CanComment(stranger, rep))
}

func TestCloseTwiceConflicts(t *testing.T) {
	svc, reports, _ := newReportService(CommentPolicyStaff)
	closer := "s"
	reports.On("Close", uint(1), "s").Return(models.BugReport{ID: 1, IsClosed: true, ClosedBy: &closer}, nil).Once()
	reports.On("Close", uint(1), "s").Return(models.BugReport{}, repository.ErrAlreadyClosed).Once()
	reports.On("Close", uint(2), "s").Return(models.BugReport{}, repository.ErrNotFound)

	staff := models.User{ID: "s", IsStaff: true}
	rep, err := svc.Close(context.Background(), staff, 1)
	require.NoError(t, err)
	assert.True(t, rep.IsClosed)

	_, err = svc.Close(context.Background(), staff, 1)
	assert.Equal(t, ErrReportClosed, err)

	_, err = svc.Close(context.Background(), staff, 2)
	assert.Equal(t, ErrReportNotFound, err)
}

func TestReportVisibleToReporterAndStaffOnly(t *testing.T) {
	svc, reports, users := newReportService(CommentPolicyStaff)
	reports.On("Get", uint(5)).Return(models.BugReport{ID: 5, UserID: "reporter"}, nil)
	users.On("ByIDs", []string{"reporter"}).Return(map[string]models.User{"reporter": {ID: "reporter", Username: "rita"}}, nil)

	_, err := svc.Get(context.Background(), models.User{ID: "stranger"}, 5)
	assert.Equal(t, ErrReportForbidden, err)

	view, err := svc.Get(context.Background(), models.User{ID: "reporter"}, 5)
	require.NoError(t, err)
	assert.Equal(t, "rita", view.User.Username)

	_, err = svc.Get(context.Background(), models.User{ID: "s", IsStaff: true}, 5)
	assert.NoError(t, err)
}

func TestAddCommentRespectsPolicy(t *testing.T) {
	svc, reports, _ := newReportService(CommentPolicyStaff)
	reports.On("Get", uint(5)).Return(models.BugReport{ID: 5, UserID: "reporter"}, nil)

	_, err := svc.AddComment(context.Background(), models.User{ID: "reporter"}, 5, "any news?")
	assert.Equal(t, ErrCommentForbidden, err)
	reports.AssertNotCalled(t, "AddComment", mock.Anything)

	reports.On("AddComment", mock.MatchedBy(func(c models.BugReportComment) bool {
		return c.BugReportID == 5 && c.UserID == "s" && c.Body == "looking into it"
	})).Return(models.BugReportComment{ID: 9, BugReportID: 5, UserID: "s", Body: "looking into it"}, nil)
	c, err := svc.AddComment(context.Background(), models.User{ID: "s", Username: "sam", IsStaff: true}, 5, " looking into it ")
	require.NoError(t, err)
	assert.Equal(t, uint(9), c.ID)
	assert.Equal(t, "sam", c.User.Username)
}

func TestListOpenPaging(t *testing.T) {
	svc, reports, users := newReportService(CommentPolicyStaff)
	reports.On("List", mock.MatchedBy(func(f repository.ReportFilter) bool {
		return f.IsClosed != nil && !*f.IsClosed
	}), repository.Page{Offset: 0, Limit: 100}).Return([]models.BugReport{{ID: 1, UserID: "u1"}}, int64(1), nil)
	users.On("ByIDs", []string{"u1"}).Return(map[string]models.User{}, nil)

	page, err := svc.ListOpen(context.Background(), 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 100, page.Limit)
	require.Len(t, page.Items, 1)
	assert.Nil(t, page.Items[0].User)

	_, err = svc.ListOpen(context.Background(), -1, 0)
	assert.Equal(t, ErrBadPage, err)
}
