// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package alert

import (
	"fmt"

	"github.com/lexdesk/procmon/internal/models"
)

// render builds an alert's title and description from its kind.
func render(c Candidate) (string, string) {
	name := c.Display
	if name == "" {
		name = c.Subject.ID
	}

	switch c.Kind {
	case models.AlertNoOwnerFound:
		return fmt.Sprintf("No owner found: %s", name),
			fmt.Sprintf("%s has no responsible person and %s of inactivity; no recent interaction points to an active employee.", name, days(c.Days))
	case models.AlertNewlyAssignedCritical:
		return fmt.Sprintf("Assigned after %s idle: %s", days(c.Days), name),
			fmt.Sprintf("%s was assigned to you automatically after %s without activity. Review it first.", name, days(c.Days))
	case models.AlertStalled:
		return fmt.Sprintf("Stalled: %s", name),
			fmt.Sprintf("%s has had no activity for %s.", name, days(c.Days))
	case models.AlertDeadlineApproaching:
		if c.Days == 0 {
			return fmt.Sprintf("Deadline today: %s", name),
				fmt.Sprintf("A deadline on %s expires today.", name)
		}
		return fmt.Sprintf("Deadline in %s: %s", days(c.Days), name),
			fmt.Sprintf("A deadline on %s expires in %s.", name, days(c.Days))
	case models.AlertStalledProcess:
		return fmt.Sprintf("Process without movement: %s", name),
			fmt.Sprintf("Process %s shows no court activity for %s.", name, days(c.Days))
	default:
		return fmt.Sprintf("%s: %s", c.Kind, name), ""
	}
}

func days(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}
