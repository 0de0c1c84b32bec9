package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-quote/internal/middleware"
	"github.com/bitfantasy/nimo-quote/internal/quote/entity"
	"github.com/bitfantasy/nimo-quote/internal/quote/repository"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestSchema = "test_quote"
	JWTSecret  = "nimo-quote-test-secret"

	AdminUserID   = "test-admin-001"
	SalesUserID   = "test-sales-001"
	ManagerUserID = "test-manager-001"
	PlantHeadID   = "test-plant-head-001"
	ClientID      = "test-client-001"
	CurrencyID    = "test-currency-inr"
	RawMaterialID = "test-raw-steel"
	JobTypeID     = "test-job-cutting"
	OtherCostID   = "test-other-paint"
	PlantID       = "test-plant-001"
	SecondPlantID = "test-plant-002"
)

// TestEnv holds test environment resources
type TestEnv struct {
	DB     *gorm.DB
	Router *gin.Engine
	T      *testing.T
}

// projectRoot returns the project root directory by looking for go.mod
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func loadEnv() {
	if root := projectRoot(); root != "" {
		godotenv.Load(filepath.Join(root, ".env"))
	}
}

// SetupTestDB connects to postgres with an isolated schema per test.
// The test is skipped when no database is reachable.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()

	baseDSN := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnv("DB_HOST", "127.0.0.1"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_USER", "nimo"),
		getEnv("DB_PASSWORD", "nimo123"),
		getEnv("DB_NAME", "nimo_quote"))

	schemaName := fmt.Sprintf("%s_%d", TestSchema, time.Now().UnixNano()%1000000000)

	setupDB, err := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	sqlSetup, _ := setupDB.DB()
	if err := sqlSetup.Ping(); err != nil {
		sqlSetup.Close()
		t.Skipf("postgres not available: %v", err)
	}
	setupDB.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName))
	sqlSetup.Close()

	// search_path in DSN so every pooled connection uses the test schema
	testDSN := fmt.Sprintf("%s search_path=%s", baseDSN, schemaName)
	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, _ := db.DB(); sqlDB != nil {
			sqlDB.Close()
		}
		cleanDB, cleanErr := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if cleanErr == nil {
			cleanDB.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
			if sqlClean, _ := cleanDB.DB(); sqlClean != nil {
				sqlClean.Close()
			}
		}
	})

	return db
}

// SetupRouter creates a gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group with JWT auth middleware
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken signs a token carrying user id and role id
func GenerateTestToken(userID, roleID string) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"uid":     userID,
		"name":    "Test " + userID,
		"role_id": roleID,
		"iss":     "nimo-quote",
		"iat":     now.Unix(),
		"exp":     now.Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// DefaultTestToken returns a token for the seeded admin
func DefaultTestToken() string {
	return GenerateTestToken(AdminUserID, entity.RoleAdmin)
}

// DoRequest executes an HTTP request against the test router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the JSON envelope into a map
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedMasterData creates users for every role, a client, currency, raw material,
// job type, other cost type and two plants.
func SeedMasterData(t *testing.T, db *gorm.DB) {
	t.Helper()
	now := time.Now()
	currencyID := CurrencyID
	plantHead := PlantHeadID
	records := []interface{}{
		&entity.User{ID: AdminUserID, Name: "Admin", RoleID: entity.RoleAdmin, Status: true, CreatedAt: now, UpdatedAt: now},
		&entity.User{ID: SalesUserID, Name: "Sales", RoleID: entity.RoleSales, Status: true, CreatedAt: now, UpdatedAt: now},
		&entity.User{ID: ManagerUserID, Name: "Manager", RoleID: entity.RoleManager, Status: true, CreatedAt: now, UpdatedAt: now},
		&entity.User{ID: PlantHeadID, Name: "Plant Head", RoleID: entity.RolePlantHead, Status: true, CreatedAt: now, UpdatedAt: now},
		&entity.Currency{ID: CurrencyID, Name: "Indian Rupee", Code: "INR", Value: decimal.RequireFromString("83.2"), Status: true, CreatedAt: now, UpdatedAt: now},
		&entity.Client{ID: ClientID, Name: "Acme", CurrencyID: &currencyID, Status: true, CreatedAt: now, UpdatedAt: now},
		&entity.RawMaterial{ID: RawMaterialID, Name: "Steel", Rate: decimal.NewFromInt(10), ScrapRate: decimal.NewFromInt(2), Status: true, CreatedAt: now, UpdatedAt: now},
		&entity.JobType{ID: JobTypeID, Name: "Cutting", Status: true, CreatedAt: now, UpdatedAt: now},
		&entity.OtherCostType{ID: OtherCostID, Name: "Painting", Status: true, CreatedAt: now, UpdatedAt: now},
		&entity.Plant{ID: PlantID, Name: "Pune", PlantHeadID: &plantHead, Status: true, CreatedAt: now, UpdatedAt: now},
		&entity.Plant{ID: SecondPlantID, Name: "Chennai", PlantHeadID: &plantHead, Status: true, CreatedAt: now, UpdatedAt: now},
	}
	for _, rec := range records {
		if err := db.Create(rec).Error; err != nil {
			t.Fatalf("Failed to seed master data: %v", err)
		}
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
