package classify

//go:generate -command mockgen mockgen -package=classify_test
//go:generate mockgen -destination=./store_mock_test.go github.com/go-bup/bup/internal/index Store
