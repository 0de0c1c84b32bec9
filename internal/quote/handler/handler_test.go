package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bitfantasy/nimo-quote/internal/quote/entity"
	"github.com/bitfantasy/nimo-quote/internal/quote/repository"
	"github.com/bitfantasy/nimo-quote/internal/quote/service"
	"github.com/bitfantasy/nimo-quote/internal/quote/testutil"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newRouter(db *gorm.DB) *gin.Engine {
	repos := repository.NewRepositories(db)
	svc := service.NewServices(repos, nil, nil, "", zap.NewNop())
	router := testutil.SetupRouter()
	NewHandlers(svc).RegisterRoutes(testutil.AuthGroup(router, "/api/v1"))
	return router
}

func setupQuoteTest(t *testing.T) *gin.Engine {
	t.Helper()
	db := testutil.SetupTestDB(t)
	testutil.SeedMasterData(t, db)
	return newRouter(db)
}

func dataOf(t *testing.T, resp map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, ok := resp["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected data object, got %v", resp["data"])
	}
	return data
}

func decimalField(t *testing.T, m map[string]interface{}, key string) decimal.Decimal {
	t.Helper()
	s, ok := m[key].(string)
	if !ok {
		t.Fatalf("Expected %s to be a decimal string, got %v", key, m[key])
	}
	return decimal.RequireFromString(s)
}

func expectDecimal(t *testing.T, m map[string]interface{}, key, want string) {
	t.Helper()
	got := decimalField(t, m, key)
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("Expected %s = %s, got %s", key, want, got)
	}
}

// stageData 取计算环节结果中的数据
func stageData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	res := dataOf(t, testutil.ParseResponse(w))
	data, ok := res["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected data in stage result, got %v", res)
	}
	return data
}

func createSampleRFQ(t *testing.T, router *gin.Engine, token string) (rfqID, skuID string) {
	t.Helper()
	body := map[string]interface{}{
		"name":      "Bracket RFQ",
		"client_id": testutil.ClientID,
		"skus": []map[string]interface{}{
			{
				"name":       "SKU-A",
				"drawing_no": "DRW-001",
				"products": []map[string]interface{}{
					{"name": "plate", "raw_material_id": testutil.RawMaterialID, "quantity_per_assembly": 3, "yield_percentage": 80, "net_weight": 2},
					{"name": "bolt", "quantity_per_assembly": 1, "yield_percentage": 100, "net_weight": 1, "bom_cost_per_kg": 25},
				},
			},
		},
	}
	w := testutil.DoRequest(router, "POST", "/api/v1/rfqs", body, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	data := dataOf(t, testutil.ParseResponse(w))
	if data["state"] != entity.StateDraft {
		t.Errorf("Expected state draft, got %v", data["state"])
	}
	if data["version"].(float64) != 0 || data["is_latest"] != true {
		t.Errorf("Expected version 0 latest, got %v / %v", data["version"], data["is_latest"])
	}
	skus := data["skus"].([]interface{})
	if len(skus) != 1 {
		t.Fatalf("Expected 1 sku, got %d", len(skus))
	}
	sku := skus[0].(map[string]interface{})
	return data["id"].(string), sku["id"].(string)
}

func TestCostingPipelineFlow(t *testing.T) {
	router := setupQuoteTest(t)
	token := testutil.GenerateTestToken(testutil.SalesUserID, entity.RoleSales)
	rfqID, skuID := createSampleRFQ(t, router, token)

	// 组件重量/成本：plate 的BOM单价取原材料单价 10
	w := testutil.DoRequest(router, "POST", "/api/v1/skus/"+skuID+"/assembly", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("assembly: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	ledger := stageData(t, w)
	expectDecimal(t, ledger, "assembly_weight", "8.5")
	expectDecimal(t, ledger, "assembly_cost", "100")

	w = testutil.DoRequest(router, "POST", "/api/v1/job-costs", map[string]interface{}{
		"rfq_id": rfqID, "sku_id": skuID, "job_type_id": testutil.JobTypeID,
		"level": "sku", "entries": []map[string]interface{}{{"cost": 25}},
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("job cost: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "POST", "/api/v1/other-costs", map[string]interface{}{
		"rfq_id": rfqID, "sku_id": skuID, "other_cost_type_id": testutil.OtherCostID,
		"cost_per_kg": 1, "cost": 15, "status": true,
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("other cost: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/skus/"+skuID+"/subtotal", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("subtotal: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	breakdown := stageData(t, w)
	expectDecimal(t, breakdown, "subtotal", "140")

	w = testutil.DoRequest(router, "PUT", "/api/v1/skus/"+skuID+"/overhead", map[string]interface{}{"percentage": 10}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("overhead: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	expectDecimal(t, stageData(t, w), "overhead_cost", "14")

	w = testutil.DoRequest(router, "PUT", "/api/v1/skus/"+skuID+"/freight-insurance", map[string]interface{}{"freight_cost_per_kg": 2}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("freight: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	ledger = stageData(t, w)
	expectDecimal(t, ledger, "freight_cost", "17")
	expectDecimal(t, ledger, "insurance_cost", "0")
	expectDecimal(t, ledger, "cif_cost", "171")

	w = testutil.DoRequest(router, "PUT", "/api/v1/skus/"+skuID+"/margin", map[string]interface{}{"percentage": 12.5}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("margin: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	expectDecimal(t, stageData(t, w), "total_cost", "192.375")

	w = testutil.DoRequest(router, "PUT", "/api/v1/skus/"+skuID+"/currency", map[string]interface{}{"currency_id": testutil.CurrencyID}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("currency: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	expectDecimal(t, stageData(t, w), "client_currency_cost", "16005.6")

	w = testutil.DoRequest(router, "POST", "/api/v1/rfqs/"+rfqID+"/auto-calculate", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("auto-calculate: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/rfqs/"+rfqID, nil, token)
	rfq := dataOf(t, testutil.ParseResponse(w))
	expectDecimal(t, rfq, "factory_overhead_cost", "14")
	expectDecimal(t, rfq, "fob_cost", "154")
	expectDecimal(t, rfq, "cif_cost", "171")
	expectDecimal(t, rfq, "total_cost_to_customer", "192.375")
	expectDecimal(t, rfq, "margin_cost", "21.375")
}

func TestPipelineRejections(t *testing.T) {
	router := setupQuoteTest(t)
	token := testutil.GenerateTestToken(testutil.SalesUserID, entity.RoleSales)
	_, skuID := createSampleRFQ(t, router, token)

	// 没有组件成本时不能算管理费
	w := testutil.DoRequest(router, "PUT", "/api/v1/skus/"+skuID+"/overhead", map[string]interface{}{"percentage": 10}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if resp["success"] != false {
		t.Errorf("Expected success=false, got %v", resp["success"])
	}
	if dataOf(t, resp)["kind"] != "IncompletePrerequisite" {
		t.Errorf("Expected IncompletePrerequisite, got %v", dataOf(t, resp)["kind"])
	}

	w = testutil.DoRequest(router, "PUT", "/api/v1/skus/"+skuID+"/margin", map[string]interface{}{"percentage": -5}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for negative margin, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "PUT", "/api/v1/skus/"+skuID+"/currency", map[string]interface{}{"currency_id": "no-such-currency"}, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown currency, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "PUT", "/api/v1/products/no-such-product/yield", map[string]interface{}{"yield_percentage": 90}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for unknown product, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "POST", "/api/v1/skus/no-such-sku/assembly", nil, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown sku, got %d: %s", w.Code, w.Body.String())
	}
}

func TestLifecycleFlow(t *testing.T) {
	router := setupQuoteTest(t)
	sales := testutil.GenerateTestToken(testutil.SalesUserID, entity.RoleSales)
	manager := testutil.GenerateTestToken(testutil.ManagerUserID, entity.RoleManager)
	rfqID, _ := createSampleRFQ(t, router, sales)

	w := testutil.DoRequest(router, "POST", "/api/v1/rfqs/"+rfqID+"/assign", map[string]interface{}{
		"to_user_id": testutil.ManagerUserID, "to_role_id": entity.RoleManager, "comment": "please review",
	}, sales)
	if w.Code != http.StatusOK {
		t.Fatalf("assign: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// 销售不能审批
	w = testutil.DoRequest(router, "POST", "/api/v1/rfqs/"+rfqID+"/approval", map[string]interface{}{
		"target_state": entity.StateApproved, "plant_ids": []string{testutil.PlantID},
	}, sales)
	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 for sales approval, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "POST", "/api/v1/rfqs/"+rfqID+"/approval", map[string]interface{}{
		"target_state": entity.StateApproved, "plant_ids": []string{testutil.PlantID, testutil.SecondPlantID},
	}, manager)
	if w.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	result := dataOf(t, testutil.ParseResponse(w))
	if result["state"] != entity.StateApproved {
		t.Errorf("Expected approved, got %v", result["state"])
	}
	if plants := result["plants"].([]interface{}); len(plants) != 2 {
		t.Errorf("Expected 2 plant outcomes, got %d", len(plants))
	}

	// 重复审批
	w = testutil.DoRequest(router, "POST", "/api/v1/rfqs/"+rfqID+"/approval", map[string]interface{}{
		"target_state": entity.StateApproved, "plant_ids": []string{testutil.PlantID},
	}, manager)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for re-approval, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "POST", "/api/v1/rfqs/"+rfqID+"/send-to-plant", nil, manager)
	if w.Code != http.StatusOK {
		t.Fatalf("send: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/rfqs/"+rfqID+"/history", nil, manager)
	items := dataOf(t, testutil.ParseResponse(w))["items"].([]interface{})
	// create, assign, approve x2, send
	if len(items) != 5 {
		t.Fatalf("Expected 5 audit entries, got %d", len(items))
	}
	first := items[0].(map[string]interface{})
	if first["action"] != entity.ActionCreate {
		t.Errorf("Expected first entry to be create, got %v", first["action"])
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/rfqs/"+rfqID+"/plants", nil, manager)
	plants := dataOf(t, testutil.ParseResponse(w))["items"].([]interface{})
	if len(plants) != 2 {
		t.Errorf("Expected 2 plant assignments, got %d", len(plants))
	}
}

func TestRejectAndResubmit(t *testing.T) {
	router := setupQuoteTest(t)
	sales := testutil.GenerateTestToken(testutil.SalesUserID, entity.RoleSales)
	manager := testutil.GenerateTestToken(testutil.ManagerUserID, entity.RoleManager)
	rfqID, _ := createSampleRFQ(t, router, sales)

	w := testutil.DoRequest(router, "POST", "/api/v1/rfqs/"+rfqID+"/approval", map[string]interface{}{
		"target_state": entity.StateRejected,
	}, manager)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for reject without comment, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "POST", "/api/v1/rfqs/"+rfqID+"/approval", map[string]interface{}{
		"target_state": entity.StateRejected, "comment": "pricing too high",
	}, manager)
	if w.Code != http.StatusOK {
		t.Fatalf("reject: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "POST", "/api/v1/rfqs/"+rfqID+"/resubmit", map[string]interface{}{"comment": "revised pricing"}, sales)
	if w.Code != http.StatusOK {
		t.Fatalf("resubmit: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	entry := dataOf(t, testutil.ParseResponse(w))
	if entry["to_state"] != entity.StatePendingReview {
		t.Errorf("Expected pending_review, got %v", entry["to_state"])
	}

	// 工厂负责人按当前状态驳回
	head := testutil.GenerateTestToken(testutil.PlantHeadID, entity.RolePlantHead)
	w = testutil.DoRequest(router, "POST", "/api/v1/rfqs/"+rfqID+"/reject-with-state", map[string]interface{}{
		"target_state_id": entity.StateApproved, "comment": "wrong state",
	}, head)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for mismatched state, got %d: %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(router, "POST", "/api/v1/rfqs/"+rfqID+"/reject-with-state", map[string]interface{}{
		"target_state_id": entity.StatePendingReview, "comment": "capacity full",
	}, head)
	if w.Code != http.StatusOK {
		t.Fatalf("reject-with-state: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRevisionAndLatestSelector(t *testing.T) {
	router := setupQuoteTest(t)
	token := testutil.GenerateTestToken(testutil.SalesUserID, entity.RoleSales)
	rfqID, skuID := createSampleRFQ(t, router, token)

	w := testutil.DoRequest(router, "POST", "/api/v1/skus/"+skuID+"/assembly", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("assembly: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "POST", "/api/v1/rfqs/"+rfqID+"/revisions", nil, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("revision: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	rev := dataOf(t, testutil.ParseResponse(w))
	if rev["version"].(float64) != 1 {
		t.Errorf("Expected version 1, got %v", rev["version"])
	}
	newRFQID := rev["rfq_id"].(string)
	newSKUID := rev["sku_map"].(map[string]interface{})[skuID].(string)

	w = testutil.DoRequest(router, "GET", "/api/v1/rfqs/"+rfqID, nil, token)
	old := dataOf(t, testutil.ParseResponse(w))
	if old["state"] != entity.StateRevised || old["is_latest"] != false {
		t.Errorf("Expected old version revised and not latest, got %v / %v", old["state"], old["is_latest"])
	}

	// 新版本继承台账
	w = testutil.DoRequest(router, "GET", "/api/v1/skus/"+newSKUID, nil, token)
	copied := dataOf(t, testutil.ParseResponse(w))
	expectDecimal(t, copied["ledger"].(map[string]interface{}), "assembly_cost", "100")

	// 通过旧SKU ID + ledger=latest 写入最新版本
	w = testutil.DoRequest(router, "PUT", "/api/v1/products/"+firstProductID(t, router, token, skuID)+"/bom-cost?ledger=latest",
		map[string]interface{}{"cost_per_kg": 20}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("bom-cost latest: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	product := stageData(t, w)
	if product["sku_id"] != newSKUID {
		t.Errorf("Expected product of sku %s, got %v", newSKUID, product["sku_id"])
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/rfqs/"+rfqID+"/skus?ledger=latest", nil, token)
	skus := dataOf(t, testutil.ParseResponse(w))["items"].([]interface{})
	if skus[0].(map[string]interface{})["rfq_id"] != newRFQID {
		t.Errorf("Expected latest skus to belong to %s", newRFQID)
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/rfqs/"+newRFQID+"/revisions", nil, token)
	revisions := dataOf(t, testutil.ParseResponse(w))["items"].([]interface{})
	if len(revisions) != 2 {
		t.Fatalf("Expected 2 revision rows, got %d", len(revisions))
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/revisions/"+rev["revision_id"].(string)+"/parent", nil, token)
	if dataOf(t, testutil.ParseResponse(w))["root_id"] != rfqID {
		t.Errorf("Expected root %s", rfqID)
	}
}

func TestProductAndJobCostManagement(t *testing.T) {
	router := setupQuoteTest(t)
	token := testutil.DefaultTestToken()
	rfqID, skuID := createSampleRFQ(t, router, token)

	w := testutil.DoRequest(router, "POST", "/api/v1/skus/"+skuID+"/products", map[string]interface{}{
		"products": []map[string]interface{}{{"name": "washer", "quantity_per_assembly": 2}},
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("add products: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	added := dataOf(t, testutil.ParseResponse(w))["items"].([]interface{})
	washerID := added[0].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(router, "GET", "/api/v1/skus/"+skuID+"/products", nil, token)
	if n := len(dataOf(t, testutil.ParseResponse(w))["items"].([]interface{})); n != 3 {
		t.Fatalf("Expected 3 products, got %d", n)
	}

	w = testutil.DoRequest(router, "POST", "/api/v1/job-costs", map[string]interface{}{
		"rfq_id": rfqID, "sku_id": skuID, "job_type_id": testutil.JobTypeID,
		"level": "product", "entries": []map[string]interface{}{{"product_id": washerID, "cost": 4}},
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("job cost: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	listJobs := func() int {
		w := testutil.DoRequest(router, "GET", "/api/v1/rfqs/"+rfqID+"/job-costs?sku_id="+skuID, nil, token)
		if w.Code != http.StatusOK {
			t.Fatalf("list job costs: expected 200, got %d: %s", w.Code, w.Body.String())
		}
		return len(dataOf(t, testutil.ParseResponse(w))["items"].([]interface{}))
	}
	if n := listJobs(); n != 1 {
		t.Fatalf("Expected 1 job cost, got %d", n)
	}

	// 删除物料会带走物料级工序成本
	w = testutil.DoRequest(router, "DELETE", "/api/v1/products/"+washerID, nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("delete product: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if n := listJobs(); n != 0 {
		t.Fatalf("Expected product job costs removed, got %d", n)
	}
	w = testutil.DoRequest(router, "DELETE", "/api/v1/products/"+washerID, nil, token)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for deleted product, got %d", w.Code)
	}

	w = testutil.DoRequest(router, "POST", "/api/v1/job-costs", map[string]interface{}{
		"rfq_id": rfqID, "sku_id": skuID, "job_type_id": testutil.JobTypeID,
		"level": "sku", "entries": []map[string]interface{}{{"cost": 10}},
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("job cost: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(router, "DELETE", "/api/v1/skus/"+skuID+"/job-costs/"+testutil.JobTypeID, nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("delete job cost: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(router, "DELETE", "/api/v1/skus/"+skuID+"/job-costs/"+testutil.JobTypeID, nil, token)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 when nothing to delete, got %d", w.Code)
	}
}

func firstProductID(t *testing.T, router *gin.Engine, token, skuID string) string {
	t.Helper()
	w := testutil.DoRequest(router, "GET", "/api/v1/skus/"+skuID+"/products", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("list products: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	items := dataOf(t, testutil.ParseResponse(w))["items"].([]interface{})
	if len(items) == 0 {
		t.Fatal("Expected products")
	}
	return items[0].(map[string]interface{})["id"].(string)
}

// ========== 不依赖数据库 ==========

func TestRequiresToken(t *testing.T) {
	router := newRouter(nil)
	w := testutil.DoRequest(router, "GET", "/api/v1/rfqs", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", w.Code)
	}
}

func TestUpdateStateRequiresAdmin(t *testing.T) {
	router := newRouter(nil)
	token := testutil.GenerateTestToken(testutil.ManagerUserID, entity.RoleManager)
	w := testutil.DoRequest(router, "PUT", "/api/v1/rfqs/any/state", map[string]string{"state": "approved"}, token)
	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUnknownSelector(t *testing.T) {
	router := newRouter(nil)
	w := testutil.DoRequest(router, "POST", "/api/v1/skus/any/assembly?ledger=oldest", nil, testutil.DefaultTestToken())
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if resp["success"] != false {
		t.Errorf("Expected success=false, got %v", resp["success"])
	}
}
