package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/bitfantasy/nimo-quote/internal/quote/entity"
	"github.com/bitfantasy/nimo-quote/internal/quote/repository"
	"github.com/bitfantasy/nimo-quote/internal/quote/testutil"
	"github.com/bitfantasy/nimo-quote/internal/shared/errs"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func setupServices(t *testing.T) (*Services, *repository.Repositories) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	testutil.SeedMasterData(t, db)
	repos := repository.NewRepositories(db)
	return NewServices(repos, nil, nil, "", zap.NewNop()), repos
}

func createRFQ(t *testing.T, svc *Services, skuNames ...string) *entity.RFQ {
	t.Helper()
	in := CreateRFQInput{Name: "Housing", ClientID: testutil.ClientID, CreatedBy: testutil.SalesUserID}
	for _, name := range skuNames {
		rawMaterial := testutil.RawMaterialID
		in.SKUs = append(in.SKUs, SKUInput{
			Name: name,
			Products: []ProductInput{
				{Name: name + "-plate", RawMaterialID: &rawMaterial, QuantityPerAssembly: dec("3"), YieldPercentage: dec("80"), NetWeight: dec("2")},
				{Name: name + "-bolt", QuantityPerAssembly: dec("1"), YieldPercentage: dec("100"), NetWeight: dec("1"), BOMCostPerKg: dec("25")},
			},
		})
	}
	rfq, err := svc.RFQ.CreateRFQ(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, rfq.SKUs, len(skuNames))
	return rfq
}

func TestCreateRFQ(t *testing.T) {
	svc, repos := setupServices(t)
	ctx := context.Background()

	rfq := createRFQ(t, svc, "A", "B")
	assert.Equal(t, entity.StateDraft, rfq.State)
	assert.Equal(t, rfq.ID, rfq.RootID)
	assert.True(t, rfq.IsLatest)

	for _, sku := range rfq.SKUs {
		require.NotNil(t, sku.Ledger)
		assert.False(t, sku.Ledger.AssemblyCost.Valid)
		require.Len(t, sku.Products, 2)
		for _, p := range sku.Products {
			// 引用原材料的物料取原材料单价
			assert.True(t, p.BOMCostPerKg.Valid, p.Name)
		}
	}

	revisions, err := repos.RFQ.ListRevisions(ctx, rfq.RootID)
	require.NoError(t, err)
	require.Len(t, revisions, 1)
	assert.Equal(t, 0, revisions[0].Version)

	history, err := svc.Lifecycle.History(ctx, rfq.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, entity.ActionCreate, history[0].Action)
}

func TestCreateRFQValidation(t *testing.T) {
	svc, _ := setupServices(t)
	ctx := context.Background()

	_, err := svc.RFQ.CreateRFQ(ctx, CreateRFQInput{Name: "X", ClientID: testutil.ClientID, CreatedBy: testutil.SalesUserID})
	assert.True(t, errs.Is(err, errs.KindValidation))

	_, err = svc.RFQ.CreateRFQ(ctx, CreateRFQInput{
		Name: "X", ClientID: "missing-client", CreatedBy: testutil.SalesUserID,
		SKUs: []SKUInput{{Name: "A"}},
	})
	assert.True(t, errs.Is(err, errs.KindNotFound))

	_, err = svc.RFQ.CreateRFQ(ctx, CreateRFQInput{
		Name: "X", ClientID: testutil.ClientID, CreatedBy: testutil.SalesUserID,
		SKUs: []SKUInput{{Name: "A", Products: []ProductInput{{Name: "p", QuantityPerAssembly: dec("1"), YieldPercentage: dec("120")}}}},
	})
	assert.True(t, errs.Is(err, errs.KindValidation))
}

func TestSKULevelJobCostKeepsFirstEntry(t *testing.T) {
	svc, repos := setupServices(t)
	ctx := context.Background()
	rfq := createRFQ(t, svc, "A")
	skuID := rfq.SKUs[0].ID

	res, err := svc.Pipeline.SaveJobCosts(ctx, SelectorCurrent, JobCostInput{
		RFQID: rfq.ID, SKUID: skuID, JobTypeID: testutil.JobTypeID, Level: entity.JobCostLevelSKU,
		Entries: []JobCostEntry{{Cost: dec("20")}, {Cost: dec("99")}},
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	jobs, err := repos.Ledger.ListJobCostsBySKU(ctx, skuID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.True(t, jobs[0].Cost.Equal(decimal.NewFromInt(20)))

	// 物料级有一条缺少物料ID则整体失败，原有记录保留
	res, err = svc.Pipeline.SaveJobCosts(ctx, SelectorCurrent, JobCostInput{
		RFQID: rfq.ID, SKUID: skuID, JobTypeID: testutil.JobTypeID, Level: entity.JobCostLevelProduct,
		Entries: []JobCostEntry{{ProductID: rfq.SKUs[0].Products[0].ID, Cost: dec("5")}, {Cost: dec("6")}},
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, errs.KindValidation, res.Kind)

	jobs, err = repos.Ledger.ListJobCostsBySKU(ctx, skuID)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestInactiveOtherCostExcludedFromSubtotal(t *testing.T) {
	svc, _ := setupServices(t)
	ctx := context.Background()
	rfq := createRFQ(t, svc, "A")
	skuID := rfq.SKUs[0].ID

	res, err := svc.Pipeline.ComputeAssembly(ctx, SelectorCurrent, skuID)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	inactive := false
	res, err = svc.Pipeline.SaveOtherCost(ctx, SelectorCurrent, OtherCostInput{
		OtherCostTypeID: testutil.OtherCostID, SKUID: skuID, RFQID: rfq.ID,
		CostPerKg: dec("1"), Cost: dec("15"), Status: &inactive,
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	res, err = svc.Pipeline.Subtotal(ctx, SelectorCurrent, skuID)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	breakdown := res.Data.(*SubtotalBreakdown)
	assert.True(t, breakdown.Subtotal.Equal(decimal.NewFromInt(100)), breakdown.Subtotal.String())
}

func TestAutoCalculateNullsAggregatesWhenIncomplete(t *testing.T) {
	svc, repos := setupServices(t)
	ctx := context.Background()
	rfq := createRFQ(t, svc, "A", "B")

	// 只有A设置了管理费
	_, err := svc.Pipeline.ComputeAssembly(ctx, SelectorCurrent, rfq.SKUs[0].ID)
	require.NoError(t, err)
	res, err := svc.Pipeline.SetOverhead(ctx, SelectorCurrent, rfq.SKUs[0].ID, decimal.NewFromInt(10))
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	res, err = svc.Pipeline.FactoryTotal(ctx, SelectorCurrent, rfq.ID)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, errs.KindIncomplete, res.Kind)

	res, err = svc.Pipeline.AutoCalculate(ctx, SelectorCurrent, rfq.ID)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	stored, err := repos.RFQ.FindByID(ctx, rfq.ID)
	require.NoError(t, err)
	assert.False(t, stored.FOBCost.Valid)
	assert.False(t, stored.TotalCostToCustomer.Valid)

	// B 的组件成本已由自动计算补齐
	b, err := repos.Ledger.Get(ctx, rfq.SKUs[1].ID)
	require.NoError(t, err)
	assert.True(t, b.AssemblyCost.Valid)
}

func TestCreateRevisionKeepsSingleLatest(t *testing.T) {
	svc, repos := setupServices(t)
	ctx := context.Background()
	rfq := createRFQ(t, svc, "A")
	skuID := rfq.SKUs[0].ID

	_, err := svc.Pipeline.ComputeAssembly(ctx, SelectorCurrent, skuID)
	require.NoError(t, err)
	_, err = svc.Pipeline.SaveJobCosts(ctx, SelectorCurrent, JobCostInput{
		RFQID: rfq.ID, SKUID: skuID, JobTypeID: testutil.JobTypeID, Level: entity.JobCostLevelProduct,
		Entries: []JobCostEntry{{ProductID: rfq.SKUs[0].Products[0].ID, Cost: dec("7")}},
	})
	require.NoError(t, err)

	first, err := svc.Versioning.CreateRevision(ctx, rfq.ID, testutil.ManagerUserID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)

	// 从旧版本再次修订，版本号仍按谱系最大值递增
	second, err := svc.Versioning.CreateRevision(ctx, rfq.ID, testutil.ManagerUserID)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, rfq.ID, second.ParentID)

	n, err := repos.RFQ.CountLatest(ctx, rfq.RootID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	latest, err := repos.RFQ.FindLatest(ctx, rfq.RootID)
	require.NoError(t, err)
	assert.Equal(t, second.RFQID, latest.ID)

	prev, err := repos.RFQ.FindByID(ctx, first.RFQID)
	require.NoError(t, err)
	assert.Equal(t, entity.StateRevised, prev.State)

	// 物料级工序成本指向新版本中的物料
	newSKU := second.SKUMap[skuID]
	jobs, err := repos.Ledger.ListJobCostsBySKU(ctx, newSKU)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.NotNil(t, jobs[0].ProductID)
	product, err := repos.SKU.FindProduct(ctx, *jobs[0].ProductID)
	require.NoError(t, err)
	assert.Equal(t, newSKU, product.SKUID)

	rootID, err := svc.Versioning.GetParentVersion(ctx, second.RevisionID)
	require.NoError(t, err)
	assert.Equal(t, rfq.RootID, rootID)

	_, err = svc.Versioning.CreateRevision(ctx, "missing", testutil.ManagerUserID)
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestLatestSelectorWritesToNewestVersion(t *testing.T) {
	svc, repos := setupServices(t)
	ctx := context.Background()
	rfq := createRFQ(t, svc, "A")
	oldSKU := rfq.SKUs[0].ID

	rev, err := svc.Versioning.CreateRevision(ctx, rfq.ID, testutil.SalesUserID)
	require.NoError(t, err)

	res, err := svc.Pipeline.ComputeAssembly(ctx, SelectorLatest, oldSKU)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	oldLedger, err := repos.Ledger.Get(ctx, oldSKU)
	require.NoError(t, err)
	assert.False(t, oldLedger.AssemblyCost.Valid)

	newLedger, err := repos.Ledger.Get(ctx, rev.SKUMap[oldSKU])
	require.NoError(t, err)
	assert.True(t, newLedger.AssemblyCost.Valid)
}

func TestApprovalFanOut(t *testing.T) {
	svc, repos := setupServices(t)
	ctx := context.Background()
	rfq := createRFQ(t, svc, "A")
	manager := Actor{UserID: testutil.ManagerUserID, RoleID: entity.RoleManager}

	result, err := svc.Lifecycle.ApproveOrReject(ctx, ApprovalInput{
		RFQID: rfq.ID, Actor: manager, TargetState: entity.StateApproved,
		PlantIDs: []string{testutil.PlantID, "missing-plant", testutil.PlantID},
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StateApproved, result.State)
	require.Len(t, result.Plants, 2)
	assert.True(t, result.Plants[0].Success)
	assert.False(t, result.Plants[1].Success)

	n, err := repos.Assignment.CountPlantAssignments(ctx, rfq.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = svc.Lifecycle.SendToPlant(ctx, rfq.ID, Actor{UserID: testutil.SalesUserID, RoleID: entity.RoleSales})
	assert.True(t, errs.Is(err, errs.KindForbidden))

	entry, err := svc.Lifecycle.SendToPlant(ctx, rfq.ID, manager)
	require.NoError(t, err)
	assert.Equal(t, entity.StateSentToPlant, entry.ToState)
}

func TestAssignRoleMismatch(t *testing.T) {
	svc, _ := setupServices(t)
	ctx := context.Background()
	rfq := createRFQ(t, svc, "A")

	_, err := svc.Lifecycle.Assign(ctx, AssignInput{
		RFQID: rfq.ID, From: Actor{UserID: testutil.SalesUserID, RoleID: entity.RoleSales},
		ToUserID: testutil.ManagerUserID, ToRoleID: entity.RolePlantHead, Comment: "review",
	})
	assert.True(t, errs.Is(err, errs.KindValidation))

	_, err = svc.Lifecycle.Assign(ctx, AssignInput{
		RFQID: rfq.ID, From: Actor{UserID: testutil.SalesUserID, RoleID: entity.RoleSales},
		ToUserID: testutil.ManagerUserID, ToRoleID: entity.RoleManager,
	})
	assert.True(t, errs.Is(err, errs.KindValidation))
}

func TestLifecycleRequiresKnownActor(t *testing.T) {
	svc, repos := setupServices(t)
	ctx := context.Background()
	rfq := createRFQ(t, svc, "A")
	ghost := Actor{UserID: "ghost", RoleID: entity.RoleManager}

	_, err := svc.Lifecycle.ApproveOrReject(ctx, ApprovalInput{
		RFQID: rfq.ID, Actor: ghost, TargetState: entity.StateRejected, Comment: "no",
	})
	assert.True(t, errs.Is(err, errs.KindNotFound), "reject: %v", err)

	_, err = svc.Lifecycle.ApproveOrReject(ctx, ApprovalInput{
		RFQID: rfq.ID, Actor: ghost, TargetState: entity.StateApproved, PlantIDs: []string{testutil.PlantID},
	})
	assert.True(t, errs.Is(err, errs.KindNotFound), "approve: %v", err)

	_, err = svc.Lifecycle.AddComment(ctx, rfq.ID, ghost, "hello")
	assert.True(t, errs.Is(err, errs.KindNotFound), "comment: %v", err)

	_, err = svc.Lifecycle.UpdateState(ctx, rfq.ID, entity.StateApproved, Actor{UserID: "ghost", RoleID: entity.RoleAdmin})
	assert.True(t, errs.Is(err, errs.KindNotFound), "update state: %v", err)

	_, err = svc.Lifecycle.SendToPlant(ctx, rfq.ID, ghost)
	assert.True(t, errs.Is(err, errs.KindNotFound), "send to plant: %v", err)

	// 状态与审计轨迹均未变化
	current, err := repos.RFQ.FindByID(ctx, rfq.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StateDraft, current.State)
	history, err := svc.Lifecycle.History(ctx, rfq.ID)
	require.NoError(t, err)
	for _, h := range history {
		assert.NotEqual(t, "ghost", h.FromUserID)
	}
	n, err := repos.Assignment.CountPlantAssignments(ctx, rfq.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDocumentsWithoutObjectStore(t *testing.T) {
	svc, _ := setupServices(t)
	ctx := context.Background()
	rfq := createRFQ(t, svc, "A")

	_, err := svc.Document.Upload(ctx, "missing", testutil.SalesUserID, bytes.NewReader(nil), "a.pdf", 0, "application/pdf")
	assert.True(t, errs.Is(err, errs.KindNotFound))

	doc, err := svc.Document.Upload(ctx, rfq.ID, testutil.SalesUserID, bytes.NewReader([]byte("pdf")), "../drawing.pdf", 3, "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "drawing.pdf", doc.FileName)
	assert.Contains(t, doc.ObjectName, "rfq/"+rfq.ID+"/")

	docs, err := svc.Document.List(ctx, rfq.ID)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	require.NoError(t, svc.Document.Delete(ctx, doc.ID))
	docs, err = svc.Document.List(ctx, rfq.ID)
	require.NoError(t, err)
	assert.Empty(t, docs)

	require.NoError(t, svc.Document.DeletePermanently(ctx, doc.ID))
	assert.True(t, errs.Is(svc.Document.Delete(ctx, doc.ID), errs.KindNotFound))
}

func TestExportRFQ(t *testing.T) {
	svc, _ := setupServices(t)
	ctx := context.Background()
	rfq := createRFQ(t, svc, "A")

	res, err := svc.Pipeline.ComputeAssembly(ctx, SelectorCurrent, rfq.SKUs[0].ID)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	f, filename, err := svc.Export.ExportRFQ(ctx, rfq.ID)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "Housing_v0_costing.xlsx", filename)

	header, err := f.GetCellValue("Costing", "A1")
	require.NoError(t, err)
	assert.Equal(t, "SKU", header)
	name, err := f.GetCellValue("Costing", "A2")
	require.NoError(t, err)
	assert.Equal(t, "A", name)
	cost, err := f.GetCellValue("Costing", "D2")
	require.NoError(t, err)
	assert.Equal(t, "100", cost)
	summary, err := f.GetCellValue("Costing", "A3")
	require.NoError(t, err)
	assert.Equal(t, "汇总", summary)
}
