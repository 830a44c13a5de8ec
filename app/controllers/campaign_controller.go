package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CollectFox/internal/pkg/jobqueue"
)

// HandleExecuteCampaign runs the campaign inside the request.
func (a *API) HandleExecuteCampaign(c *fiber.Ctx) error {
	scope, id, err := scopeAndID(c, "id")
	if err != nil {
		return fiberError(c, err)
	}
	result, err := a.Campaigns.ExecuteCampaign(c.UserContext(), scope, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// HandleEnqueueCampaign schedules the campaign on the job queue.
func (a *API) HandleEnqueueCampaign(c *fiber.Ctx) error {
	scope, id, err := scopeAndID(c, "id")
	if err != nil {
		return fiberError(c, err)
	}
	if a.Jobs == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "unavailable", "message": "Job queue is not running"})
	}
	payload := jobqueue.ExecuteCampaignPayload{TenantID: scope.TenantID, CampaignID: id, Trigger: "api"}
	job, err := a.Jobs.EnqueueJob(c.UserContext(), jobqueue.JobTypeExecuteCampaign, payload.ToMap())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": job.ID, "status": job.Status})
}
