package sync

import (
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRequiredYAML = `
siteId: ${SITE_ID}
api:
  key: ${API_KEY}
`

const testDefaultsYAML = `
api:
  endpoint: https://api.createsend.com
log:
  level: info
`

const testSiteYAML = `
api:
  clientId: client-1
connector:
  breaker:
    consecutiveFailures: 3
    timeout: 10s
mailingLists:
  - listId: list-a
    name: News
    customFields:
      - key: shirt size
        memberField: m_field_id_3
      - key: "[Location]"
        memberField: "location|@countryName"
  - listId: list-b
    name: Gold members
    triggerField: plan
    triggerValue: gold
`

func testConfigFS() fstest.MapFS {
	return fstest.MapFS{
		"config/required.yaml":          {Data: []byte(testRequiredYAML)},
		"config/defaults.yaml":          {Data: []byte(testDefaultsYAML)},
		"config/sites/ACME/main.yaml":   {Data: []byte(testSiteYAML)},
		"config/sites/ACME/events.yaml": {Data: []byte(testSiteYAML)},
	}
}

func configFile(name, contents string) ConfigFile {
	return ConfigFile{Name: name, Reader: strings.NewReader(contents), Length: len(contents)}
}

func TestLoadSiteConfigFromEnvironment(t *testing.T) {
	t.Setenv("ACME_MAIN", `{"SITE_ID":"7","CONFIG_PATH":"ACME/main","API_KEY":"secret"}`)

	cfg, err := LoadSiteConfigFromEnvironment(
		EmbeddedConfig{Root: "config", Files: testConfigFS()},
		7,
		ConfigWithKeyExpander(CampaignMonitorKeyExpander),
	)

	require.NoError(t, err)
	assert.Equal(t, 7, cfg.SiteID)
	assert.Equal(t, "secret", cfg.API.Key)
	assert.Equal(t, "client-1", cfg.API.ClientID)
	assert.Equal(t, "https://api.createsend.com", cfg.API.Endpoint)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, uint32(3), cfg.Connector.Breaker.ConsecutiveFailures)
	assert.Equal(t, 10*time.Second, cfg.Connector.Breaker.Timeout)
	require.Len(t, cfg.MailingLists, 2)
	assert.Equal(t, []CustomField{
		{Key: "[ShirtSize]", MemberField: "m_field_id_3"},
		{Key: "[Location]", MemberField: "location|@countryName"},
	}, cfg.MailingLists[0].CustomFields)

	gold, ok := cfg.MailingList("list-b")
	require.True(t, ok)
	assert.Equal(t, "plan", gold.TriggerField)
	assert.Equal(t, "gold", gold.TriggerValue)
	_, ok = cfg.MailingList("list-z")
	assert.False(t, ok)
}

func TestLoadSiteConfigFromEnvironment_NoEnvVar(t *testing.T) {
	_, err := LoadSiteConfigFromEnvironment(EmbeddedConfig{Root: "config", Files: testConfigFS()}, 424242)
	assert.ErrorContains(t, err, "no env var found")
}

func TestLoadSiteConfigFromEnvironment_SiteMismatch(t *testing.T) {
	t.Setenv("ACME_MAIN", `{"SITE_ID":"8","CONFIG_PATH":"ACME/main","API_KEY":"secret"}`)
	fsys := testConfigFS()
	fsys["config/required.yaml"] = &fstest.MapFile{Data: []byte("siteId: 9\napi:\n  key: ${API_KEY}\n")}

	_, err := LoadSiteConfigFromEnvironment(EmbeddedConfig{Root: "config", Files: fsys}, 8)
	assert.ErrorContains(t, err, "declares site 9")
}

func TestYAMLConfigUnmarshaler_MissingEnvValue(t *testing.T) {
	_, err := YAMLConfigUnmarshaler{}.Unmarshal(
		JSONCompositeEnvVar{Parent: "CAMPAIGNER_TEST_UNSET"},
		configFile("required.yaml", testRequiredYAML),
	)
	assert.Error(t, err)
}

func TestYAMLConfigUnmarshaler_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing key", "siteId: 1\napi:\n  clientId: c\n"},
		{"bad site", "siteId: 0\napi:\n  key: k\n"},
		{"bad endpoint", "siteId: 1\napi:\n  key: k\n  endpoint: not a url\n"},
		{"bad level", "siteId: 1\napi:\n  key: k\nlog:\n  level: loud\n"},
		{"list without id", "siteId: 1\napi:\n  key: k\nmailingLists:\n  - name: News\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := YAMLConfigUnmarshaler{}.Unmarshal(JSONCompositeEnvVar{}, configFile("site.yaml", tt.yaml))
			assert.ErrorContains(t, err, "invalid config")
		})
	}
}

func TestYAMLConfigUnmarshaler_KeyExpanderError(t *testing.T) {
	yaml := "siteId: 1\napi:\n  key: k\nmailingLists:\n  - listId: a\n    customFields:\n      - key: \"bad]key\"\n        memberField: x\n"

	_, err := YAMLConfigUnmarshaler{KeyExpander: CampaignMonitorKeyExpander}.Unmarshal(JSONCompositeEnvVar{}, configFile("site.yaml", yaml))

	assert.ErrorContains(t, err, "malformed key")
}

func TestMustFindSiteConfigFile(t *testing.T) {
	ec := EmbeddedConfig{Root: "config", Files: testConfigFS()}

	file, err := ec.MustFindSiteConfigFile("ACME/main")
	require.NoError(t, err)
	assert.Equal(t, "config/sites/ACME/main.yaml", file.Name)
	assert.Equal(t, len(testSiteYAML), file.Length)

	_, err = ec.MustFindSiteConfigFile("ACME/missing")
	assert.ErrorContains(t, err, "failed to find config file")

	_, err = ec.MustFindSiteConfigFile("main")
	assert.ErrorContains(t, err, "ORG/LABEL")

	_, err = ec.MustFindSiteConfigFile("ACME/")
	assert.Error(t, err)
}

func TestMustFindSiteConfigFile_MultipleMatches(t *testing.T) {
	fsys := testConfigFS()
	fsys["config/sites/ACME/main-old.yaml"] = &fstest.MapFile{Data: []byte(testSiteYAML)}

	_, err := EmbeddedConfig{Root: "config", Files: fsys}.MustFindSiteConfigFile("ACME/main")

	assert.ErrorContains(t, err, "multiple config files")
}

func TestFindSiteEnvVar(t *testing.T) {
	t.Setenv("ACME_MAIN", `{"SITE_ID":"7","CONFIG_PATH":"ACME/main"}`)
	t.Setenv("ACME_BROKEN", `{"SITE_ID":"8"}`)

	name, path, err := FindSiteEnvVar("7")
	require.NoError(t, err)
	assert.Equal(t, "ACME_MAIN", name)
	assert.Equal(t, "ACME/main", path)

	_, _, err = FindSiteEnvVar("8")
	assert.ErrorContains(t, err, "missing CONFIG_PATH")

	name, _, err = FindSiteEnvVar("9")
	assert.NoError(t, err)
	assert.Empty(t, name)
}

func TestFindSiteEnvVar_Duplicates(t *testing.T) {
	t.Setenv("ACME_MAIN", `{"SITE_ID":"7","CONFIG_PATH":"ACME/main"}`)
	t.Setenv("ACME_OTHER", `{"SITE_ID":"7","CONFIG_PATH":"ACME/other"}`)

	_, _, err := FindSiteEnvVar("7")
	assert.ErrorContains(t, err, "found multiple env vars")
	assert.ErrorContains(t, ValidateSiteEnvVars(), "duplicate SITE_ID")
}

func TestValidateSiteEnvVars_OrgPrefix(t *testing.T) {
	t.Setenv("OTHER_MAIN", `{"SITE_ID":"70","CONFIG_PATH":"ACME/main"}`)
	t.Setenv("ACME_NOORG", `{"SITE_ID":"71","CONFIG_PATH":"main"}`)

	err := ValidateSiteEnvVars()

	assert.ErrorContains(t, err, `must start with org prefix "ACME_"`)
	assert.ErrorContains(t, err, "must contain org directory")
}

func TestJSONCompositeEnvVar(t *testing.T) {
	t.Setenv("ACME_MAIN", `{"API_KEY":"secret"}`)

	v, ok := JSONCompositeEnvVar{Parent: "ACME_MAIN"}.LookupEnv("API_KEY")
	assert.True(t, ok)
	assert.Equal(t, "secret", v)

	_, ok = JSONCompositeEnvVar{Parent: "ACME_MAIN"}.LookupEnv("CLIENT_ID")
	assert.False(t, ok)

	_, ok = JSONCompositeEnvVar{}.LookupEnv("API_KEY")
	assert.False(t, ok)
}

func TestCampaignMonitorKeyExpander(t *testing.T) {
	lists := []MailingList{{
		ListID: "a",
		CustomFields: []CustomField{
			{Key: "shirt size"},
			{Key: "favourite_colour"},
			{Key: "[Existing]"},
			{Key: ""},
		},
	}}

	require.NoError(t, CampaignMonitorKeyExpander.ExpandCustomFieldKeys(lists))

	assert.Equal(t, "[ShirtSize]", lists[0].CustomFields[0].Key)
	assert.Equal(t, "[FavouriteColour]", lists[0].CustomFields[1].Key)
	assert.Equal(t, "[Existing]", lists[0].CustomFields[2].Key)
	assert.Equal(t, "", lists[0].CustomFields[3].Key)
}

func TestFieldLabel(t *testing.T) {
	assert.Equal(t, "Screen Name", FieldLabel("screen_name"))
	assert.Equal(t, "Group Id", FieldLabel("group_id"))
	assert.Equal(t, "Url", FieldLabel("url"))
}

func TestSiteLabel(t *testing.T) {
	assert.Equal(t, "main", SiteLabel("ACME/main"))
	assert.Equal(t, "main", SiteLabel("main"))
}
