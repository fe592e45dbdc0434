package model

import (
	"fmt"
	"strings"
)

const (
	// UpgradeEntityType is the entity type upgrade results are attached to
	UpgradeEntityType = "dataHubUpgrade"

	upgradeURNPrefix = "urn:li:" + UpgradeEntityType + ":"
)

// UpgradeURN identifies the dataHubUpgrade entity of one upgrade id
type UpgradeURN struct {
	UpgradeID string
}

// NewUpgradeURN returns the urn for upgradeID
func NewUpgradeURN(upgradeID string) UpgradeURN {
	return UpgradeURN{UpgradeID: upgradeID}
}

// String renders the urn as urn:li:dataHubUpgrade:<id>
func (u UpgradeURN) String() string {
	return upgradeURNPrefix + u.UpgradeID
}

// ParseUpgradeURN parses urn:li:dataHubUpgrade:<id>
func ParseUpgradeURN(s string) (UpgradeURN, error) {
	if !strings.HasPrefix(s, upgradeURNPrefix) {
		return UpgradeURN{}, fmt.Errorf("invalid upgrade urn %q: expected prefix %s", s, upgradeURNPrefix)
	}
	id := strings.TrimPrefix(s, upgradeURNPrefix)
	if err := ValidateUpgradeID(id); err != nil {
		return UpgradeURN{}, fmt.Errorf("invalid upgrade urn %q: %w", s, err)
	}
	return UpgradeURN{UpgradeID: id}, nil
}

// ValidateUpgradeID checks that id can be used as an urn key
func ValidateUpgradeID(id string) error {
	if id == "" {
		return fmt.Errorf("upgrade id must not be empty")
	}
	if strings.ContainsAny(id, " \t\r\n,()") {
		return fmt.Errorf("upgrade id %q contains reserved characters", id)
	}
	return nil
}
