package summarise_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canonical/charm-analysis/internal/summarise"
)

const (
	workloadMetadataContentConstant = `name: demo-k8s
assumes:
  - juju >= 3.1
  - k8s-api
containers:
  workload:
    resource: oci-image
resources:
  oci-image:
    type: oci-image
requires:
  database:
    interface: postgresql_client
storage:
  data:
    type: filesystem
`
	nestedAssumesMetadataContentConstant = `name: nested-k8s
assumes:
  - any-of:
      - juju >= 2.9
      - k8s-api
requires:
  ingress:
    interface: ingress
`
)

func writeCharmProject(testInstance *testing.T, cacheRoot string, projectName string, files map[string]string) {
	projectPath := filepath.Join(cacheRoot, projectName)
	require.NoError(testInstance, os.MkdirAll(projectPath, 0o755))
	for fileName, fileContent := range files {
		filePath := filepath.Join(projectPath, fileName)
		require.NoError(testInstance, os.MkdirAll(filepath.Dir(filePath), 0o755))
		require.NoError(testInstance, os.WriteFile(filePath, []byte(fileContent), 0o644))
	}
}

func TestMetadataSummarise(testInstance *testing.T) {
	cacheRoot := testInstance.TempDir()
	writeCharmProject(testInstance, cacheRoot, "demo-k8s-operator", map[string]string{
		"metadata.yaml": workloadMetadataContentConstant,
	})
	writeCharmProject(testInstance, cacheRoot, "nested-k8s-operator", map[string]string{
		"metadata.yaml": nestedAssumesMetadataContentConstant,
	})
	writeCharmProject(testInstance, cacheRoot, "bare-operator", map[string]string{
		"README.md": "no metadata here\n",
	})

	analyzer := summarise.NewMetadataAnalyzer(nil, nil)
	summary, summariseError := analyzer.Summarise(cacheRoot)
	require.NoError(testInstance, summariseError)

	require.Equal(testInstance, 3, summary.TotalProjects)
	require.Equal(testInstance, 1, summary.MissingMetadata)
	require.Equal(testInstance, 1, summary.JujuVersions.Count("juju >= 3.1"))
	require.Equal(testInstance, 1, summary.JujuVersions.Count("juju >= 2.9"))
	require.Equal(testInstance, 2, summary.Assumes.Count("k8s-api"))
	require.Equal(testInstance, 1, summary.ContainerCounts.Count("1"))
	require.Equal(testInstance, 1, summary.ContainerCounts.Count("0"))
	require.Equal(testInstance, 1, summary.Resources.Count("oci-image"))
	require.Equal(testInstance, 1, summary.Relations.Count("database : postgresql_client"))
	require.Equal(testInstance, 1, summary.Relations.Count("ingress : ingress"))
	require.Equal(testInstance, 1, summary.StorageTypes.Count("filesystem"))
}

func TestMetadataSummariseRejectsMalformedDocument(testInstance *testing.T) {
	cacheRoot := testInstance.TempDir()
	writeCharmProject(testInstance, cacheRoot, "broken-operator", map[string]string{
		"metadata.yaml": "assumes: [unterminated\n",
	})

	analyzer := summarise.NewMetadataAnalyzer(nil, nil)
	summary, summariseError := analyzer.Summarise(cacheRoot)
	require.Error(testInstance, summariseError)
	require.Nil(testInstance, summary)
}

func TestMetadataWriteReport(testInstance *testing.T) {
	cacheRoot := testInstance.TempDir()
	writeCharmProject(testInstance, cacheRoot, "demo-k8s-operator", map[string]string{
		"metadata.yaml": workloadMetadataContentConstant,
	})

	analyzer := summarise.NewMetadataAnalyzer(nil, nil)
	summary, summariseError := analyzer.Summarise(cacheRoot)
	require.NoError(testInstance, summariseError)

	var reportBuilder strings.Builder
	summary.WriteReport(&reportBuilder)

	renderedReport := reportBuilder.String()
	require.Contains(testInstance, renderedReport, "Juju Versions")
	require.Contains(testInstance, renderedReport, "Assumes")
	require.Contains(testInstance, renderedReport, "Common Resources")
	require.Contains(testInstance, renderedReport, "Common Relations")
	require.Contains(testInstance, renderedReport, "Storage Types")
	require.Contains(testInstance, renderedReport, "database : postgresql_client")
}
