package catalog

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, ioutil.WriteFile(path, []byte(data), 0644))
	return path
}

func TestReadVariants(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, dir)
	path := writeFile(t, dir, "test.snp", `hv1	single	A*01:01	310	T
hv2	deletion	A*01:01	355	4
hv3	insertion	A*01:01	410	GG
hv9	single	B*07:02	12	C
`)
	ids, vars, err := ReadVariants(ctx, path, "A*01:01", 300)
	require.NoError(t, err)
	assert.Equal(t, []string{"hv1", "hv2", "hv3"}, ids)
	assert.Equal(t, Variant{Kind: Single, Pos: 10, Data: "T"}, vars["hv1"])
	assert.Equal(t, Variant{Kind: Deletion, Pos: 55, Data: "4"}, vars["hv2"])
	assert.Equal(t, Variant{Kind: Insertion, Pos: 110, Data: "GG"}, vars["hv3"])

	c := New(ids, vars)
	assert.Equal(t, 3, c.Len())
}

func TestReadVariantsMalformed(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, dir)

	path := writeFile(t, dir, "bad-kind.snp", "hv1\tsnp\tA*01:01\t310\tT\n")
	_, _, err := ReadVariants(ctx, path, "", 0)
	assert.Error(t, err)

	path = writeFile(t, dir, "bad-cols.snp", "hv1\tsingle\t310\tT\n")
	_, _, err = ReadVariants(ctx, path, "", 0)
	assert.Error(t, err)

	path = writeFile(t, dir, "dup.snp", "hv1\tsingle\tA\t1\tT\nhv1\tsingle\tA\t2\tC\n")
	_, _, err = ReadVariants(ctx, path, "", 0)
	assert.Error(t, err)
}

func TestReadLinkage(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, dir)
	path := writeFile(t, dir, "test.link", `hv1	A*01:01:01 A*01:02
hv2	A*01:02
`)
	links, err := ReadLinkage(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"A*01:01:01", "A*01:02"}, links["hv1"])
	assert.Equal(t, []string{"A*01:02"}, links["hv2"])

	path = writeFile(t, dir, "empty.link", "hv1\n")
	_, err = ReadLinkage(ctx, path)
	assert.Error(t, err)
}
