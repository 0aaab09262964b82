package storage

import "testing"

func TestMigrationsAreOrderedAndEmbedded(t *testing.T) {
	names, err := migrationNames()
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	if len(names) < 2 {
		t.Fatalf("expected embedded migrations, got %v", names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("migrations out of order: %v", names)
		}
	}
}
