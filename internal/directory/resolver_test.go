package directory_test

import (
	"io"
	"testing"

	"github.com/mautops/expense-gin/internal/directory"
	"github.com/mautops/expense-gin/internal/model"
	"github.com/mautops/expense-gin/internal/repository"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupResolver 创建解析器测试环境
func setupResolver(t *testing.T) (*directory.Resolver, repository.EmployeeRepository) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.EmployeeModel{}))

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	employeeRepo := repository.NewEmployeeRepository(db)
	return directory.NewResolver(employeeRepo, logger), employeeRepo
}

// seedEmployee 预置员工
func seedEmployee(t *testing.T, repo repository.EmployeeRepository, id, role string, supervisorID *string, archived bool) {
	require.NoError(t, repo.Save(&model.EmployeeModel{
		ID:       id,
		Name:     id,
		Role:     role,
		SupervisorID: supervisorID,
		Archived: archived,
	}))
}

// TestResolver_GetSupervisor 测试直属上级查找
func TestResolver_GetSupervisor(t *testing.T) {
	resolver, repo := setupResolver(t)

	supID := "sup-001"
	seedEmployee(t, repo, "sup-001", model.RoleSupervisor, nil, false)
	seedEmployee(t, repo, "emp-001", model.RoleEmployee, &supID, false)

	supervisor, err := resolver.GetSupervisor("emp-001")
	assert.NoError(t, err)
	require.NotNil(t, supervisor)
	assert.Equal(t, "sup-001", supervisor.ID)
}

// TestResolver_GetSupervisor_Missing 测试缺失场景统一返回 nil
func TestResolver_GetSupervisor_Missing(t *testing.T) {
	resolver, repo := setupResolver(t)

	archivedID := "sup-archived"
	seedEmployee(t, repo, "sup-archived", model.RoleSupervisor, nil, true)
	seedEmployee(t, repo, "emp-no-sup", model.RoleEmployee, nil, false)
	seedEmployee(t, repo, "emp-archived-sup", model.RoleEmployee, &archivedID, false)

	// 员工不存在
	supervisor, err := resolver.GetSupervisor("emp-missing")
	assert.NoError(t, err)
	assert.Nil(t, supervisor)

	// 员工没有上级
	supervisor, err = resolver.GetSupervisor("emp-no-sup")
	assert.NoError(t, err)
	assert.Nil(t, supervisor)

	// 上级已归档
	supervisor, err = resolver.GetSupervisor("emp-archived-sup")
	assert.NoError(t, err)
	assert.Nil(t, supervisor)
}

// TestResolver_GetFinanceApprovers 测试财务审批人查找,排除归档员工
func TestResolver_GetFinanceApprovers(t *testing.T) {
	resolver, repo := setupResolver(t)

	seedEmployee(t, repo, "fin-001", model.RoleFinance, nil, false)
	seedEmployee(t, repo, "fin-002", model.RoleFinance, nil, false)
	seedEmployee(t, repo, "fin-archived", model.RoleFinance, nil, true)
	seedEmployee(t, repo, "emp-001", model.RoleEmployee, nil, false)

	approvers, err := resolver.GetFinanceApprovers()
	assert.NoError(t, err)
	require.Len(t, approvers, 2)
	for _, a := range approvers {
		assert.Equal(t, model.RoleFinance, a.Role)
		assert.False(t, a.Archived)
	}
}

// TestResolver_GetAllSupervised 测试传递闭包
func TestResolver_GetAllSupervised(t *testing.T) {
	resolver, repo := setupResolver(t)

	// root → a, b;a → c
	rootID, aID := "root", "a"
	seedEmployee(t, repo, "root", model.RoleSupervisor, nil, false)
	seedEmployee(t, repo, "a", model.RoleSupervisor, &rootID, false)
	seedEmployee(t, repo, "b", model.RoleEmployee, &rootID, false)
	seedEmployee(t, repo, "c", model.RoleEmployee, &aID, false)

	supervised, err := resolver.GetAllSupervised("root")
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, supervised)
}

// TestResolver_GetAllSupervised_CycleTolerance 测试层级有环时仍能终止
func TestResolver_GetAllSupervised_CycleTolerance(t *testing.T) {
	resolver, repo := setupResolver(t)

	// x 和 y 互为上级的脏数据
	xID, yID := "x", "y"
	seedEmployee(t, repo, "x", model.RoleSupervisor, &yID, false)
	seedEmployee(t, repo, "y", model.RoleSupervisor, &xID, false)

	supervised, err := resolver.GetAllSupervised("x")
	assert.NoError(t, err)
	assert.Equal(t, []string{"y"}, supervised)
}
