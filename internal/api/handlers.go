package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/classcount/classcount-go/internal/datastore"
	"github.com/classcount/classcount-go/internal/ingest"
	"github.com/classcount/classcount-go/internal/report"
)

// maxUploadBytes bounds how much image data one upload may carry.
const maxUploadBytes = 32 << 20 // 32 MiB

// ---- auth ----

type registerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	SchoolID  uint   `json:"school_id"`
}

func (s *Server) handleRegister(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return respond(c, http.StatusBadRequest, "invalid request body", nil)
	}
	if req.Email == "" || len(req.Password) < 8 {
		return respond(c, http.StatusBadRequest, "email and a password of at least 8 characters are required", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return respondError(c, err)
	}
	role := req.Role
	if role == "" {
		role = datastore.RoleUploader
	}
	user := datastore.User{
		SchoolID:     req.SchoolID,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         role,
		PasswordHash: string(hash),
	}
	if err := s.store.SaveUser(&user); err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusCreated, "User registered successfully", user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil || req.Email == "" || req.Password == "" {
		return respond(c, http.StatusBadRequest, "email and password are required", nil)
	}
	user, err := s.store.GetUserByEmail(req.Email)
	if err != nil {
		return respond(c, http.StatusUnauthorized, "invalid email or password", nil)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return respond(c, http.StatusUnauthorized, "invalid email or password", nil)
	}
	return respond(c, http.StatusOK, "Login successful", user)
}

// ---- schools ----

func (s *Server) handleListSchools(c echo.Context) error {
	schools, err := s.store.GetAllSchools()
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Schools fetched successfully", schools)
}

func (s *Server) handleCreateSchool(c echo.Context) error {
	var school datastore.School
	if err := c.Bind(&school); err != nil || school.Name == "" {
		return respond(c, http.StatusBadRequest, "school name is required", nil)
	}
	if err := s.store.SaveSchool(&school); err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusCreated, "School created successfully", school)
}

func (s *Server) handleGetSchool(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return respond(c, http.StatusBadRequest, "invalid id", nil)
	}
	school, err := s.store.GetSchool(id)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "School fetched successfully", school)
}

func (s *Server) handleUpdateSchool(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return respond(c, http.StatusBadRequest, "invalid id", nil)
	}
	school, err := s.store.GetSchool(id)
	if err != nil {
		return respondError(c, err)
	}
	var req datastore.School
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return respond(c, http.StatusBadRequest, "school name is required", nil)
	}
	school.Name = req.Name
	school.Address = req.Address
	if err := s.store.SaveSchool(&school); err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "School updated successfully", school)
}

func (s *Server) handleDeleteSchool(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return respond(c, http.StatusBadRequest, "invalid id", nil)
	}
	if err := s.store.DeleteSchool(id); err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "School deleted successfully", nil)
}

// ---- users ----

func (s *Server) handleListUsers(c echo.Context) error {
	users, err := s.store.GetAllUsers()
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Users fetched successfully", users)
}

func (s *Server) handleGetUser(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return respond(c, http.StatusBadRequest, "invalid id", nil)
	}
	user, err := s.store.GetUser(id)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "User fetched successfully", user)
}

// ---- image uploads ----

func (s *Server) handleListImages(c echo.Context) error {
	uploads, err := s.store.GetAllImageUploads()
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Images fetched successfully", uploads)
}

// handleUploadImage accepts a multipart upload and runs it through the
// ingestion pipeline. A partial success still returns 201; the outcome body
// names the fields that could not be computed.
func (s *Server) handleUploadImage(c echo.Context) error {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		return respond(c, http.StatusBadRequest, "image file is required", nil)
	}
	userID, err := strconv.ParseUint(c.FormValue("user_id"), 10, 32)
	if err != nil {
		return respond(c, http.StatusBadRequest, "user_id is required", nil)
	}
	attendance, err := strconv.Atoi(c.FormValue("attendance"))
	if err != nil {
		return respond(c, http.StatusBadRequest, "attendance is required", nil)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return respondError(c, err)
	}
	defer func() { _ = file.Close() }()
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return respondError(c, err)
	}
	if len(data) > maxUploadBytes {
		return respond(c, http.StatusRequestEntityTooLarge, "image exceeds upload size limit", nil)
	}

	outcome, err := s.pipeline.Ingest(c.Request().Context(), &ingest.Request{
		ImageData:  data,
		Filename:   fileHeader.Filename,
		UserID:     uint(userID),
		Attendance: attendance,
	})
	if err != nil {
		return respondError(c, err)
	}

	message := "Image uploaded and analyzed successfully"
	if outcome.Status == ingest.StatusPartial {
		message = "Image uploaded, some analysis results are unavailable"
	}
	return respond(c, http.StatusCreated, message, outcome)
}

func (s *Server) handleRecentImages(c echo.Context) error {
	userID, err := strconv.ParseUint(c.QueryParam("user_id"), 10, 32)
	if err != nil {
		return respond(c, http.StatusBadRequest, "user_id is required", nil)
	}
	uploads, err := s.store.GetRecentImageUploads(uint(userID), 10)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Recent images fetched successfully", uploads)
}

func (s *Server) handleGetImage(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return respond(c, http.StatusBadRequest, "invalid id", nil)
	}
	upload, err := s.store.GetImageUpload(id)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Image fetched successfully", upload)
}

func (s *Server) handleDeleteImage(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return respond(c, http.StatusBadRequest, "invalid id", nil)
	}
	if err := s.store.DeleteImageUpload(id); err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Image deleted successfully", nil)
}

// ---- notifications ----

func (s *Server) handleListNotifications(c echo.Context) error {
	var userID uint64
	if v := c.QueryParam("user_id"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return respond(c, http.StatusBadRequest, "invalid user_id", nil)
		}
		userID = parsed
	}
	notifications, err := s.store.GetNotifications(uint(userID))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Notifications fetched successfully", notifications)
}

func (s *Server) handleGetNotification(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return respond(c, http.StatusBadRequest, "invalid id", nil)
	}
	notification, err := s.store.GetNotification(id)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Notification fetched successfully", notification)
}

func (s *Server) handleMarkNotificationSent(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return respond(c, http.StatusBadRequest, "invalid id", nil)
	}
	if err := s.store.MarkNotificationSent(id, time.Now()); err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Notification marked as sent", nil)
}

func (s *Server) handleDeleteNotification(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return respond(c, http.StatusBadRequest, "invalid id", nil)
	}
	if err := s.store.DeleteNotification(id); err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Notification deleted successfully", nil)
}

// ---- daily reports ----

func (s *Server) handleListReports(c echo.Context) error {
	reports, err := s.store.GetAllDailyReports()
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Reports fetched successfully", reports)
}

type generateReportRequest struct {
	Date string `json:"date"` // YYYY-MM-DD, defaults to today
}

func (s *Server) handleGenerateReport(c echo.Context) error {
	var req generateReportRequest
	_ = c.Bind(&req)

	date := time.Now()
	if req.Date != "" {
		parsed, err := time.ParseInLocation(report.DateLayout, req.Date, time.Local)
		if err != nil {
			return respond(c, http.StatusBadRequest, "date must be formatted as YYYY-MM-DD", nil)
		}
		date = parsed
	}

	generated, err := s.reports.Generate(date)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusCreated, "Report generated successfully", generated)
}

func (s *Server) handleDailySummary(c echo.Context) error {
	date := time.Now()
	if v := c.QueryParam("date"); v != "" {
		parsed, err := time.ParseInLocation(report.DateLayout, v, time.Local)
		if err != nil {
			return respond(c, http.StatusBadRequest, "date must be formatted as YYYY-MM-DD", nil)
		}
		date = parsed
	}
	summary, err := s.reports.Summarize(date)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Daily summary fetched successfully", summary)
}

func (s *Server) handleGetReport(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return respond(c, http.StatusBadRequest, "invalid id", nil)
	}
	generated, err := s.store.GetDailyReportByID(id)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Report fetched successfully", generated)
}

func (s *Server) handleDeleteReport(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return respond(c, http.StatusBadRequest, "invalid id", nil)
	}
	if err := s.store.DeleteDailyReport(id); err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Report deleted successfully", nil)
}

func parseID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	return uint(id), err
}
